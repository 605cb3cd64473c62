package message

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ReturnCode is a six digit EBICS return code.
type ReturnCode string

// Technical return codes
const (
	CodeOK                         ReturnCode = "000000"
	CodeDownloadPostprocessDone    ReturnCode = "011000"
	CodeDownloadPostprocessSkipped ReturnCode = "011001"
	CodeTxSegmentNumberUnderrun    ReturnCode = "011101"
	CodeOrderParamsIgnored         ReturnCode = "031001"
	CodeAuthenticationFailed       ReturnCode = "061001"
	CodeInvalidRequest             ReturnCode = "061002"
	CodeInternalError              ReturnCode = "061099"
	CodeTxRecoverySync             ReturnCode = "061101"
	CodeInvalidUserOrUserState     ReturnCode = "091002"
	CodeUserUnknown                ReturnCode = "091003"
	CodeInvalidUserState           ReturnCode = "091004"
	CodeInvalidOrderType           ReturnCode = "091005"
	CodeUnsupportedOrderType       ReturnCode = "091006"
	CodeBankPubKeyUpdateRequired   ReturnCode = "091008"
	CodeSegmentSizeExceeded        ReturnCode = "091009"
	CodeInvalidXML                 ReturnCode = "091010"
	CodeInvalidHostID              ReturnCode = "091011"
	CodeTxUnknownTxID              ReturnCode = "091101"
	CodeTxAbort                    ReturnCode = "091102"
	CodeTxMessageReplay            ReturnCode = "091103"
	CodeTxSegmentNumberExceeded    ReturnCode = "091104"
	CodeInvalidOrderParams         ReturnCode = "091112"
	CodeInvalidRequestContent      ReturnCode = "091113"
	CodeMaxOrderDataSizeExceeded   ReturnCode = "091117"
	CodeMaxSegmentsExceeded        ReturnCode = "091118"
	CodeMaxTransactionsExceeded    ReturnCode = "091119"
	CodePartnerIDMismatch          ReturnCode = "091120"
)

// Business return codes
const (
	CodeAuthorisationOrderTypeFailed ReturnCode = "090003"
	CodeInvalidOrderDataFormat       ReturnCode = "090004"
	CodeNoDownloadDataAvailable      ReturnCode = "090005"
	CodeUnsupportedRequestForOrder   ReturnCode = "090006"
	CodeRecoveryNotSupported         ReturnCode = "091105"
	CodeOrderIDUnknown               ReturnCode = "091114"
	CodeOrderIDAlreadyExists         ReturnCode = "091115"
	CodeProcessingError              ReturnCode = "091116"
	CodeSignatureVerificationFailed  ReturnCode = "091301"
	CodeAccountAuthorisationFailed   ReturnCode = "091302"
	CodeAmountCheckFailed            ReturnCode = "091303"
	CodeSignerUnknown                ReturnCode = "091304"
	CodeInvalidSignerState           ReturnCode = "091305"
	CodeDuplicateSignature           ReturnCode = "091306"
)

var codeNames = map[ReturnCode]string{
	CodeOK:                           "EBICS_OK",
	CodeDownloadPostprocessDone:      "EBICS_DOWNLOAD_POSTPROCESS_DONE",
	CodeDownloadPostprocessSkipped:   "EBICS_DOWNLOAD_POSTPROCESS_SKIPPED",
	CodeTxSegmentNumberUnderrun:      "EBICS_TX_SEGMENT_NUMBER_UNDERRUN",
	CodeOrderParamsIgnored:           "EBICS_ORDER_PARAMS_IGNORED",
	CodeAuthenticationFailed:         "EBICS_AUTHENTICATION_FAILED",
	CodeInvalidRequest:               "EBICS_INVALID_REQUEST",
	CodeInternalError:                "EBICS_INTERNAL_ERROR",
	CodeTxRecoverySync:               "EBICS_TX_RECOVERY_SYNC",
	CodeInvalidUserOrUserState:       "EBICS_INVALID_USER_OR_USER_STATE",
	CodeUserUnknown:                  "EBICS_USER_UNKNOWN",
	CodeInvalidUserState:             "EBICS_INVALID_USER_STATE",
	CodeInvalidOrderType:             "EBICS_INVALID_ORDER_TYPE",
	CodeUnsupportedOrderType:         "EBICS_UNSUPPORTED_ORDER_TYPE",
	CodeBankPubKeyUpdateRequired:     "EBICS_BANK_PUBKEY_UPDATE_REQUIRED",
	CodeSegmentSizeExceeded:          "EBICS_SEGMENT_SIZE_EXCEEDED",
	CodeInvalidXML:                   "EBICS_INVALID_XML",
	CodeInvalidHostID:                "EBICS_INVALID_HOST_ID",
	CodeTxUnknownTxID:                "EBICS_TX_UNKNOWN_TXID",
	CodeTxAbort:                      "EBICS_TX_ABORT",
	CodeTxMessageReplay:              "EBICS_TX_MESSAGE_REPLAY",
	CodeTxSegmentNumberExceeded:      "EBICS_TX_SEGMENT_NUMBER_EXCEEDED",
	CodeInvalidOrderParams:           "EBICS_INVALID_ORDER_PARAMS",
	CodeInvalidRequestContent:        "EBICS_INVALID_REQUEST_CONTENT",
	CodeMaxOrderDataSizeExceeded:     "EBICS_MAX_ORDER_DATA_SIZE_EXCEEDED",
	CodeMaxSegmentsExceeded:          "EBICS_MAX_SEGMENTS_EXCEEDED",
	CodeMaxTransactionsExceeded:      "EBICS_MAX_TRANSACTIONS_EXCEEDED",
	CodePartnerIDMismatch:            "EBICS_PARTNER_ID_MISMATCH",
	CodeAuthorisationOrderTypeFailed: "EBICS_AUTHORISATION_ORDER_TYPE_FAILED",
	CodeInvalidOrderDataFormat:       "EBICS_INVALID_ORDER_DATA_FORMAT",
	CodeNoDownloadDataAvailable:      "EBICS_NO_DOWNLOAD_DATA_AVAILABLE",
	CodeUnsupportedRequestForOrder:   "EBICS_UNSUPPORTED_REQUEST_FOR_ORDER_INSTANCE",
	CodeRecoveryNotSupported:         "EBICS_RECOVERY_NOT_SUPPORTED",
	CodeOrderIDUnknown:               "EBICS_ORDERID_UNKNOWN",
	CodeOrderIDAlreadyExists:         "EBICS_ORDERID_ALREADY_EXISTS",
	CodeProcessingError:              "EBICS_PROCESSING_ERROR",
	CodeSignatureVerificationFailed:  "EBICS_SIGNATURE_VERIFICATION_FAILED",
	CodeAccountAuthorisationFailed:   "EBICS_ACCOUNT_AUTHORISATION_FAILED",
	CodeAmountCheckFailed:            "EBICS_AMOUNT_CHECK_FAILED",
	CodeSignerUnknown:                "EBICS_SIGNER_UNKNOWN",
	CodeInvalidSignerState:           "EBICS_INVALID_SIGNER_STATE",
	CodeDuplicateSignature:           "EBICS_DUPLICATE_SIGNATURE",
}

var retryableCodes = map[ReturnCode]bool{
	CodeInternalError:           true,
	CodeTxRecoverySync:          true,
	CodeMaxTransactionsExceeded: true,
}

// Name returns the symbolic name, or "EBICS_UNKNOWN_<code>".
func (c ReturnCode) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "EBICS_UNKNOWN_" + string(c)
}

// IsError reports whether c signals a failure. The second digit encodes the
// severity: 0 ok, 1 note, 3 warning, 6 and 9 error. A code that is not six
// digits long, including the empty code, is an error.
func (c ReturnCode) IsError() bool {
	if len(c) != 6 {
		return true
	}
	return c[1] == '6' || c[1] == '9'
}

// Retryable reports whether the bank may accept the same request later.
func (c ReturnCode) Retryable() bool { return retryableCodes[c] }

func (c ReturnCode) String() string {
	return fmt.Sprintf("%s %s", string(c), c.Name())
}

var (
	// ErrProtocol is matched by every ProtocolError.
	ErrProtocol = errors.New("ebics protocol error")
	// ErrNoDataAvailable is matched by a ProtocolError carrying 090005.
	ErrNoDataAvailable = errors.New("no download data available")
	// ErrMissingReturnCode is returned by Check for a response without a
	// technical return code.
	ErrMissingReturnCode = errors.New("response without technical return code")
)

// ProtocolError is a non-success return code reported by the bank.
type ProtocolError struct {
	Code          ReturnCode
	ReportText    string
	Phase         string
	Segment       int
	OrderType     string
	TransactionID []byte
}

func (e *ProtocolError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", ErrProtocol, e.Code)
	if e.OrderType != "" {
		fmt.Fprintf(&sb, " order %s", e.OrderType)
	}
	if e.Phase != "" {
		fmt.Fprintf(&sb, " phase %s", e.Phase)
	}
	if e.Segment > 0 {
		fmt.Fprintf(&sb, " segment %d", e.Segment)
	}
	if len(e.TransactionID) > 0 {
		fmt.Fprintf(&sb, " transaction %s", strings.ToUpper(hex.EncodeToString(e.TransactionID)))
	}
	if e.ReportText != "" {
		fmt.Fprintf(&sb, ": %s", e.ReportText)
	}
	return sb.String()
}

// Is matches ErrProtocol, and ErrNoDataAvailable for code 090005.
func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrProtocol:
		return true
	case ErrNoDataAvailable:
		return e.Code == CodeNoDownloadDataAvailable
	}
	return false
}

// Retryable reports whether the code is a recognised transient condition.
func (e *ProtocolError) Retryable() bool { return e.Code.Retryable() }
