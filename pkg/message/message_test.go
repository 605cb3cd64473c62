package message

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/xml"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/order"
)

var fixedTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testBuilder(v Version) *Builder {
	return NewBuilder(Header{
		Version:   v,
		HostID:    "EBIXHOST",
		PartnerID: "PARTNER1",
		UserID:    "USER1",
		Product:   Product{Name: "go-ebics", Language: "de"},
	}, WithNonce(func() string { return "0123456789ABCDEF0123456789ABCDEF" }), WithClock(func() time.Time { return fixedTime }))
}

func testDigests() Digests {
	return Digests{Authentication: []byte{1, 2, 3}, Encryption: []byte{4, 5, 6}}
}

func marshal(t *testing.T, r *Request) string {
	t.Helper()
	data, err := r.Marshal()
	require.NoError(t, err)
	return string(data)
}

func TestBuilder_INI(t *testing.T) {
	out := marshal(t, testBuilder(H004).INI([]byte("compressed")))

	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, `<ebicsUnsecuredRequest xmlns="urn:org:ebics:H004" Version="H004" Revision="1">`)
	assert.Contains(t, out, `<header authenticate="true">`)
	assert.Contains(t, out, `<OrderDetails><OrderType>INI</OrderType><OrderAttribute>DZNNN</OrderAttribute></OrderDetails>`)
	assert.Contains(t, out, `<SecurityMedium>0000</SecurityMedium>`)
	assert.Contains(t, out, `<OrderData>Y29tcHJlc3NlZA==</OrderData>`)
	assert.NotContains(t, out, "Nonce")
}

func TestBuilder_HIA_H005(t *testing.T) {
	out := marshal(t, testBuilder(H005).HIA([]byte("x")))

	assert.Contains(t, out, `<ebicsUnsecuredRequest xmlns="urn:org:ebics:H005" Version="H005"`)
	assert.Contains(t, out, `<OrderDetails><AdminOrderType>HIA</AdminOrderType></OrderDetails>`)
}

func TestBuilder_HPB(t *testing.T) {
	out := marshal(t, testBuilder(H004).HPB())

	assert.Contains(t, out, `<ebicsNoPubKeyDigestsRequest`)
	assert.Contains(t, out, `<Nonce>0123456789ABCDEF0123456789ABCDEF</Nonce>`)
	assert.Contains(t, out, `<Timestamp>2024-05-06T07:08:09.000Z</Timestamp>`)
	assert.Contains(t, out, `<Product Language="de">go-ebics</Product>`)
	assert.Contains(t, out, `<OrderType>HPB</OrderType><OrderAttribute>DZHNN</OrderAttribute>`)
	assert.NotContains(t, out, "BankPubKeyDigests")
}

func TestBuilder_UploadInit_H004(t *testing.T) {
	o, err := order.NewUploadOrder(order.Legacy{AdminType: order.AdminFUL, BusinessType: "pain.001.001.03"})
	require.NoError(t, err)

	req, err := testBuilder(H004).UploadInit(UploadInit{
		Order:          o,
		OrderID:        "A001",
		Params:         map[string]string{"TEST": "TRUE"},
		NumSegments:    3,
		Digests:        testDigests(),
		TransactionKey: []byte("key"),
		SignatureData:  []byte("sig"),
	})
	require.NoError(t, err)
	out := marshal(t, req)

	assert.Contains(t, out, `<OrderType>FUL</OrderType><OrderID>A001</OrderID><OrderAttribute>OZHNN</OrderAttribute>`)
	assert.Contains(t, out, `<FULOrderParams><Parameter><Name>TEST</Name><Value Type="string">TRUE</Value></Parameter><FileFormat>pain.001.001.03</FileFormat></FULOrderParams>`)
	assert.Contains(t, out, `<Authentication Version="X002" Algorithm="http://www.w3.org/2001/04/xmlenc#sha256">AQID</Authentication>`)
	assert.Contains(t, out, `<NumSegments>3</NumSegments>`)
	assert.Contains(t, out, `<TransactionPhase>Initialisation</TransactionPhase>`)
	assert.Contains(t, out, `<DataEncryptionInfo authenticate="true"><EncryptionPubKeyDigest Version="E002" Algorithm="http://www.w3.org/2001/04/xmlenc#sha256">BAUG</EncryptionPubKeyDigest><TransactionKey>a2V5</TransactionKey></DataEncryptionInfo>`)
	assert.Contains(t, out, `<SignatureData authenticate="true">c2ln</SignatureData>`)
}

func TestBuilder_UploadInit_StandardAndGeneric(t *testing.T) {
	o, err := order.NewUploadOrder(order.Legacy{AdminType: order.AdminUPL, BusinessType: "CCT"}, order.WithSignature(false))
	require.NoError(t, err)

	req, err := testBuilder(H004).UploadInit(UploadInit{Order: o, OrderID: "A002", NumSegments: 1, Digests: testDigests()})
	require.NoError(t, err)
	out := marshal(t, req)
	assert.Contains(t, out, `<OrderType>CCT</OrderType><OrderID>A002</OrderID><OrderAttribute>DZHNN</OrderAttribute><StandardOrderParams></StandardOrderParams>`)

	req, err = testBuilder(H004).UploadInit(UploadInit{Order: o, Params: map[string]string{"B": "2", "A": "1"}, Digests: testDigests()})
	require.NoError(t, err)
	out = marshal(t, req)
	assert.Contains(t, out, `<GenericOrderParams><Parameter><Name>A</Name>`)
	assert.Less(t, strings.Index(out, "<Name>A</Name>"), strings.Index(out, "<Name>B</Name>"))
}

func TestBuilder_UploadInit_H005(t *testing.T) {
	o, err := order.NewUploadOrder(order.Structured{
		Service:     "SCT",
		Scope:       "DE",
		Container:   "ZIP",
		MessageName: "pain.001",
		Version:     "09",
	}, order.WithEDS(true))
	require.NoError(t, err)

	req, err := testBuilder(H005).UploadInit(UploadInit{Order: o, NumSegments: 1, Digests: testDigests()})
	require.NoError(t, err)
	out := marshal(t, req)

	assert.Contains(t, out, `<AdminOrderType>BTU</AdminOrderType><BTUOrderParams><Service><ServiceName>SCT</ServiceName><Scope>DE</Scope><Container containerType="ZIP"></Container><MsgName version="09">pain.001</MsgName></Service><SignatureFlag requestEDS="true"></SignatureFlag></BTUOrderParams>`)
	assert.NotContains(t, out, "OrderID")
}

func TestBuilder_UnsupportedDescriptor(t *testing.T) {
	structured, err := order.NewUploadOrder(order.Structured{Service: "SCT", MessageName: "pain.001"})
	require.NoError(t, err)
	_, err = testBuilder(H004).UploadInit(UploadInit{Order: structured})
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)

	legacy, err := order.NewDownloadOrder(order.Legacy{AdminType: order.AdminDNL, BusinessType: "STA"})
	require.NoError(t, err)
	_, err = testBuilder(H005).DownloadInit(DownloadInit{Order: legacy})
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
}

func TestBuilder_DownloadInit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o, err := order.NewDownloadOrder(order.Legacy{AdminType: order.AdminDNL, BusinessType: "STA"}, order.WithDateRange(start, start.AddDate(0, 0, 30)))
	require.NoError(t, err)

	req, err := testBuilder(H004).DownloadInit(DownloadInit{Order: o, Digests: testDigests()})
	require.NoError(t, err)
	out := marshal(t, req)
	assert.Contains(t, out, `<OrderType>STA</OrderType><OrderAttribute>DZHNN</OrderAttribute><StandardOrderParams><DateRange><Start>2024-01-01</Start><End>2024-01-31</End></DateRange></StandardOrderParams>`)
	assert.NotContains(t, out, "NumSegments")
	assert.Equal(t, "STA", req.OrderType())

	btd, err := order.NewDownloadOrder(order.Structured{Service: "EOP", MessageName: "camt.053", Version: "08"})
	require.NoError(t, err)
	req, err = testBuilder(H005).DownloadInit(DownloadInit{Order: btd, Digests: testDigests()})
	require.NoError(t, err)
	out = marshal(t, req)
	assert.Contains(t, out, `<AdminOrderType>BTD</AdminOrderType><BTDOrderParams><Service><ServiceName>EOP</ServiceName><MsgName version="08">camt.053</MsgName></Service></BTDOrderParams>`)
}

func TestBuilder_TransferAndReceipt(t *testing.T) {
	b := testBuilder(H004)
	txID := []byte{0xAB, 0x01}

	out := marshal(t, b.UploadTransfer(txID, 2, true, []byte("seg")))
	assert.Contains(t, out, `<static><HostID>EBIXHOST</HostID><TransactionID>AB01</TransactionID></static>`)
	assert.Contains(t, out, `<mutable><TransactionPhase>Transfer</TransactionPhase><SegmentNumber lastSegment="true">2</SegmentNumber></mutable>`)
	assert.Contains(t, out, `<OrderData>c2Vn</OrderData>`)

	out = marshal(t, b.DownloadTransfer(txID, 2, false))
	assert.Contains(t, out, `<SegmentNumber lastSegment="false">2</SegmentNumber>`)
	assert.Contains(t, out, `<body></body>`)

	out = marshal(t, b.Receipt(txID, 0))
	assert.Contains(t, out, `<TransactionPhase>Receipt</TransactionPhase>`)
	assert.Contains(t, out, `<TransferReceipt authenticate="true"><ReceiptCode>0</ReceiptCode></TransferReceipt>`)
}

func TestBuilder_SPR(t *testing.T) {
	out := marshal(t, testBuilder(H004).SPR("A003", testDigests(), []byte("k"), []byte("s")))
	assert.Contains(t, out, `<OrderType>SPR</OrderType><OrderID>A003</OrderID><OrderAttribute>UZHNN</OrderAttribute>`)
	assert.Contains(t, out, `<NumSegments>0</NumSegments>`)

	out = marshal(t, testBuilder(H005).SPR("", testDigests(), []byte("k"), []byte("s")))
	assert.Contains(t, out, `<OrderDetails><AdminOrderType>SPR</AdminOrderType></OrderDetails>`)
}

func TestParseRequest_RoundTrip(t *testing.T) {
	o, err := order.NewUploadOrder(order.Legacy{AdminType: order.AdminUPL, BusinessType: "CCT"})
	require.NoError(t, err)
	req, err := testBuilder(H004).UploadInit(UploadInit{Order: o, OrderID: "A001", NumSegments: 2, Digests: testDigests(), TransactionKey: []byte("key"), SignatureData: []byte("sig")})
	require.NoError(t, err)
	data, err := req.Marshal()
	require.NoError(t, err)

	parsed, err := ParseRequest(data)
	require.NoError(t, err)
	assert.Equal(t, RootRequest, parsed.XMLName.Local)
	assert.Equal(t, NsH004, parsed.XMLName.Space)
	assert.Equal(t, "CCT", parsed.OrderType())
	require.NotNil(t, parsed.Header.Static.NumSegments)
	assert.Equal(t, 2, *parsed.Header.Static.NumSegments)
	assert.Equal(t, []byte("key"), []byte(parsed.Body.DataTransfer.DataEncryptionInfo.TransactionKey))
	assert.Equal(t, []byte("sig"), []byte(parsed.Body.DataTransfer.SignatureData.Value))
	assert.Equal(t, []byte{4, 5, 6}, []byte(parsed.Header.Static.BankPubKeyDigests.Encryption.Value))
}

func TestParseResponse(t *testing.T) {
	resp := NewResponse(H004, RootResponse, PhaseInitialisation, CodeOK, CodeOK)
	resp.Header.Static.TransactionID = []byte{0x01, 0x02}
	resp.Header.Static.NumSegments = 3
	resp.Header.Mutable.SegmentNumber = &SegmentNumber{Number: 1}
	resp.Body.DataTransfer = &ResponseDataTransfer{
		DataEncryptionInfo: &DataEncryptionInfo{Authenticate: true, TransactionKey: []byte("wrapped")},
		OrderData:          []byte("segment-1"),
	}
	data, err := resp.Marshal()
	require.NoError(t, err)

	parsed, err := ParseResponse(data)
	require.NoError(t, err)
	require.NoError(t, parsed.Check(PhaseInitialisation))
	assert.Equal(t, []byte{0x01, 0x02}, parsed.TransactionID())
	assert.Equal(t, 3, parsed.NumSegments())
	n, last := parsed.SegmentNumber()
	assert.Equal(t, 1, n)
	assert.False(t, last)
	assert.Equal(t, []byte("segment-1"), parsed.OrderData())
	require.NotNil(t, parsed.EncryptionInfo())
	assert.Equal(t, []byte("wrapped"), []byte(parsed.EncryptionInfo().TransactionKey))

	_, err = ParseResponse([]byte(`<ebicsRequest Version="H004"/>`))
	assert.Error(t, err)
	_, err = ParseResponse([]byte(`not xml`))
	assert.Error(t, err)
}

func TestResponse_Check(t *testing.T) {
	tests := []struct {
		name      string
		technical ReturnCode
		business  ReturnCode
		wantCode  ReturnCode
		noData    bool
	}{
		{"ok", CodeOK, CodeOK, "", false},
		{"postprocess done", CodeDownloadPostprocessDone, "", "", false},
		{"warning", CodeOrderParamsIgnored, CodeOK, "", false},
		{"technical error", CodeAuthenticationFailed, CodeOK, CodeAuthenticationFailed, false},
		{"business error", CodeOK, CodeInvalidUserOrUserState, CodeInvalidUserOrUserState, false},
		{"technical first", CodeTxRecoverySync, CodeProcessingError, CodeTxRecoverySync, false},
		{"no data", CodeOK, CodeNoDownloadDataAvailable, CodeNoDownloadDataAvailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(H004, RootResponse, PhaseInitialisation, tt.technical, tt.business)
			resp.Header.Mutable.ReportText = "report"
			err := resp.Check(PhaseInitialisation)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantCode, perr.Code)
			assert.Equal(t, PhaseInitialisation, perr.Phase)
			assert.ErrorIs(t, err, ErrProtocol)
			assert.Equal(t, tt.noData, errors.Is(err, ErrNoDataAvailable))
			assert.Contains(t, err.Error(), "report")
		})
	}
}

func TestResponse_Check_MissingTechnicalCode(t *testing.T) {
	tests := []struct {
		name     string
		business ReturnCode
	}{
		{"business ok", CodeOK},
		{"business error", CodeProcessingError},
		{"no business code", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewResponse(H004, RootResponse, PhaseTransfer, "", tt.business)
			err := resp.Check(PhaseTransfer)
			require.ErrorIs(t, err, ErrMissingReturnCode)
			assert.NotErrorIs(t, err, ErrProtocol)
			assert.Contains(t, err.Error(), PhaseTransfer)
		})
	}
}

func TestResponse_Check_ParsedWithoutReturnCode(t *testing.T) {
	doc := []byte(`<ebicsResponse xmlns="urn:org:ebics:H004" Version="H004" Revision="1">` +
		`<header authenticate="true"><static/><mutable><TransactionPhase>Initialisation</TransactionPhase></mutable></header>` +
		`<body><ReturnCode authenticate="true">000000</ReturnCode></body></ebicsResponse>`)
	resp, err := ParseResponse(doc)
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Check(PhaseInitialisation), ErrMissingReturnCode)
}

func TestReturnCode(t *testing.T) {
	assert.Equal(t, "EBICS_NO_DOWNLOAD_DATA_AVAILABLE", CodeNoDownloadDataAvailable.Name())
	assert.Equal(t, "EBICS_UNKNOWN_099999", ReturnCode("099999").Name())
	assert.True(t, CodeTxRecoverySync.Retryable())
	assert.True(t, CodeInternalError.Retryable())
	assert.True(t, CodeMaxTransactionsExceeded.Retryable())
	assert.False(t, CodeAuthenticationFailed.Retryable())
	assert.False(t, CodeOK.IsError())
	assert.True(t, ReturnCode("").IsError())
	assert.True(t, ReturnCode("bogus").IsError())
	assert.True(t, ReturnCode("09").IsError())
	assert.Equal(t, "061001 EBICS_AUTHENTICATION_FAILED", CodeAuthenticationFailed.String())

	perr := &ProtocolError{Code: CodeTxRecoverySync, Segment: 2, TransactionID: []byte{0xAB}, OrderType: "CCT"}
	assert.True(t, perr.Retryable())
	assert.Contains(t, perr.Error(), "segment 2")
	assert.Contains(t, perr.Error(), "transaction AB")
	assert.Contains(t, perr.Error(), "order CCT")
}

func TestNewResponse_KeyManagement(t *testing.T) {
	resp := NewResponse(H004, RootKeyManagementResponse, PhaseInitialisation, CodeOK, CodeOK)
	data, err := resp.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `<ebicsKeyManagementResponse xmlns="urn:org:ebics:H004"`)
	assert.NotContains(t, string(data), "TransactionPhase")
}

func TestBase64_Whitespace(t *testing.T) {
	var b Base64
	require.NoError(t, b.UnmarshalText([]byte("aGVs\n bG8=\r\n")))
	assert.Equal(t, "hello", string(b))
	assert.Error(t, b.UnmarshalText([]byte("!!")))

	var h HexBinary
	require.NoError(t, h.UnmarshalText([]byte(" ab01 ")))
	assert.Equal(t, []byte{0xAB, 0x01}, []byte(h))
	assert.Error(t, h.UnmarshalText([]byte("zz")))
}

func testCert(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "bank"},
		NotBefore:    fixedTime,
		NotAfter:     fixedTime.AddDate(1, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func TestPubKeyInfo(t *testing.T) {
	key, cert := testCert(t)

	t.Run("bare key", func(t *testing.T) {
		info, err := NewPubKeyInfo(&key.PublicKey, nil, true, "2024-05-06T07:08:09Z")
		require.NoError(t, err)
		assert.Nil(t, info.X509Data)
		pub, err := info.PublicKey()
		require.NoError(t, err)
		assert.True(t, pub.Equal(&key.PublicKey))
		c, err := info.Certificate()
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("certificate only", func(t *testing.T) {
		info, err := NewPubKeyInfo(&key.PublicKey, cert, false, "")
		require.NoError(t, err)
		assert.Nil(t, info.PubKeyValue)
		pub, err := info.PublicKey()
		require.NoError(t, err)
		assert.True(t, pub.Equal(&key.PublicKey))
	})

	t.Run("nothing", func(t *testing.T) {
		_, err := NewPubKeyInfo(nil, nil, false, "")
		assert.Error(t, err)
	})
}

func TestOrderData_Namespaces(t *testing.T) {
	key, cert := testCert(t)
	info, err := NewPubKeyInfo(&key.PublicKey, cert, true, "2024-05-06T07:08:09Z")
	require.NoError(t, err)
	info.SignatureVersion = "A005"

	data, err := MarshalDocument(NewSignaturePubKeyOrderData(H004, *info, "PARTNER1", "USER1"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `<SignaturePubKeyOrderData xmlns="http://www.ebics.org/S001">`)
	assert.Contains(t, out, `<X509Data xmlns="http://www.w3.org/2000/09/xmldsig#">`)
	assert.Contains(t, out, `<RSAKeyValue xmlns="http://www.w3.org/2000/09/xmldsig#">`)
	assert.Contains(t, out, `<SignatureVersion>A005</SignatureVersion>`)

	var parsed SignaturePubKeyOrderData
	require.NoError(t, UnmarshalDocument(data, &parsed))
	assert.Equal(t, "USER1", parsed.UserID)
	pub, err := parsed.SignaturePubKeyInfo.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))

	hpb := NewHPBResponseOrderData(H005, *info, *info, "EBIXHOST")
	data, err = MarshalDocument(hpb)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<HPBResponseOrderData xmlns="urn:org:ebics:H005">`)

	sig := NewUserSignatureData(H005, []byte("signature"), "PARTNER1", "USER1")
	data, err = MarshalDocument(sig)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<UserSignatureData xmlns="http://www.ebics.org/S002"><OrderSignatureData><SignatureVersion>A005</SignatureVersion>`)
}

func TestVersion(t *testing.T) {
	assert.NoError(t, H004.Validate())
	assert.NoError(t, H005.Validate())
	assert.Error(t, Version("H003").Validate())
	assert.Equal(t, NsS001, H004.SignatureNamespace())
	assert.Equal(t, NsS002, H005.SignatureNamespace())
}
