package security

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequest = `<?xml version="1.0" encoding="UTF-8"?>
<ebicsRequest xmlns="urn:org:ebics:H004" Version="H004" Revision="1"><header authenticate="true"><static><HostID>EBIXHOST</HostID><Nonce>0011</Nonce></static><mutable><TransactionPhase>Initialisation</TransactionPhase></mutable></header><body><DataTransfer><DataEncryptionInfo authenticate="true"><TransactionKey>AAAA</TransactionKey></DataEncryptionInfo><SignatureData authenticate="true">BBBB</SignatureData></DataTransfer></body></ebicsRequest>`

func TestAuthSigner_SignAndVerify(t *testing.T) {
	km := testKeyMaterial(t)
	signer := NewAuthSigner(km)

	signed, err := signer.Sign([]byte(testRequest))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	root := doc.Root()
	children := root.ChildElements()
	require.Len(t, children, 3)
	assert.Equal(t, "header", children[0].Tag)
	assert.Equal(t, "AuthSignature", children[1].Tag)
	assert.Equal(t, "body", children[2].Tag)

	ref := children[1].FindElement("./SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, AuthReferenceURI, ref.SelectAttrValue("URI", ""))

	assert.NoError(t, VerifyAuthSignature(signed, km.PublicKey(PurposeAuthentication)))
}

func TestAuthSigner_ResignReplacesSignature(t *testing.T) {
	km := testKeyMaterial(t)
	signer := NewAuthSigner(km)

	signed, err := signer.Sign([]byte(testRequest))
	require.NoError(t, err)
	again, err := signer.Sign(signed)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(again), "<AuthSignature"))
	assert.NoError(t, VerifyAuthSignature(again, km.PublicKey(PurposeAuthentication)))
}

func TestVerifyAuthSignature_Tampered(t *testing.T) {
	km := testKeyMaterial(t)
	signed, err := NewAuthSigner(km).Sign([]byte(testRequest))
	require.NoError(t, err)

	tampered := strings.Replace(string(signed), "EBIXHOST", "OTHERHOST", 1)
	err = VerifyAuthSignature([]byte(tampered), km.PublicKey(PurposeAuthentication))
	assert.ErrorIs(t, err, ErrCrypto)

	// changes outside authenticated elements are not covered
	untouched := strings.Replace(string(signed), "<DataTransfer>", "<DataTransfer>\n", 1)
	assert.NoError(t, VerifyAuthSignature([]byte(untouched), km.PublicKey(PurposeAuthentication)))
}

func TestVerifyAuthSignature_WrongKey(t *testing.T) {
	km := testKeyMaterial(t)
	signed, err := NewAuthSigner(km).Sign([]byte(testRequest))
	require.NoError(t, err)

	err = VerifyAuthSignature(signed, km.PublicKey(PurposeEncryption))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestVerifyAuthSignature_Missing(t *testing.T) {
	km := testKeyMaterial(t)
	err := VerifyAuthSignature([]byte(testRequest), km.PublicKey(PurposeAuthentication))
	assert.ErrorIs(t, err, ErrNoAuthSignature)
}

func TestAuthSigner_NoBody(t *testing.T) {
	km := testKeyMaterial(t)
	_, err := NewAuthSigner(km).Sign([]byte(`<ebicsRequest><header authenticate="true"/></ebicsRequest>`))
	assert.Error(t, err)
}

func TestCanonicalize_DeclaresInheritedNamespaces(t *testing.T) {
	const document = `<ebicsRequest xmlns="urn:org:ebics:H004" xmlns:ds="http://www.w3.org/2000/09/xmldsig#">` +
		`<header authenticate="true"><static><HostID>H</HostID></static></header>` +
		`<body><DataTransfer><SignatureData authenticate="true">BBBB</SignatureData></DataTransfer></body>` +
		`</ebicsRequest>`

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(document))
	elements := authenticatedElements(doc.Root(), nil)
	require.Len(t, elements, 2)

	tests := []struct {
		elem *etree.Element
		want string
	}{
		{elements[0], `<header xmlns="urn:org:ebics:H004" authenticate="true"><static><HostID>H</HostID></static></header>`},
		{elements[1], `<SignatureData xmlns="urn:org:ebics:H004" authenticate="true">BBBB</SignatureData>`},
	}
	for _, tt := range tests {
		t.Run(tt.elem.Tag, func(t *testing.T) {
			got, err := canonicalize(tt.elem)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// the document itself is left untouched
	assert.Nil(t, elements[0].SelectAttr("xmlns"))
}

func TestCanonicalize_PrefixedSubtree(t *testing.T) {
	const document = `<ebicsRequest xmlns="urn:org:ebics:H005" xmlns:ds="http://www.w3.org/2000/09/xmldsig#">` +
		`<AuthSignature><ds:SignedInfo><ds:Reference URI="#x"/></ds:SignedInfo></AuthSignature></ebicsRequest>`

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(document))
	signedInfo := doc.Root().FindElement("./AuthSignature/SignedInfo")
	require.NotNil(t, signedInfo)

	got, err := canonicalize(signedInfo)
	require.NoError(t, err)
	assert.Equal(t, `<ds:SignedInfo xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:Reference URI="#x"></ds:Reference></ds:SignedInfo>`, got)
}
