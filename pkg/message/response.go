package message

import (
	"encoding/xml"
	"fmt"
)

// ParseResponse parses an ebicsResponse or ebicsKeyManagementResponse.
func ParseResponse(data []byte) (*Response, error) {
	var r Response
	if err := UnmarshalDocument(data, &r); err != nil {
		return nil, err
	}
	switch r.XMLName.Local {
	case RootResponse, RootKeyManagementResponse:
	default:
		return nil, fmt.Errorf("unexpected response document <%s>", r.XMLName.Local)
	}
	return &r, nil
}

// TechnicalCode returns header/mutable/ReturnCode.
func (r *Response) TechnicalCode() ReturnCode {
	return ReturnCode(r.Header.Mutable.ReturnCode)
}

// BusinessCode returns body/ReturnCode.
func (r *Response) BusinessCode() ReturnCode {
	if r.Body.ReturnCode == nil {
		return ""
	}
	return ReturnCode(r.Body.ReturnCode.Value)
}

// Check returns a ProtocolError for the first failing return code,
// technical before business. The technical code is mandatory; a missing
// business code is not checked.
func (r *Response) Check(phase string) error {
	if r.TechnicalCode() == "" {
		return fmt.Errorf("%w in phase %s", ErrMissingReturnCode, phase)
	}
	for _, code := range []ReturnCode{r.TechnicalCode(), r.BusinessCode()} {
		if code != "" && code.IsError() {
			n, _ := r.SegmentNumber()
			return &ProtocolError{
				Code:          code,
				ReportText:    r.Header.Mutable.ReportText,
				Phase:         phase,
				Segment:       n,
				TransactionID: r.TransactionID(),
			}
		}
	}
	return nil
}

// TransactionID returns the bank-issued transaction id.
func (r *Response) TransactionID() []byte { return r.Header.Static.TransactionID }

// NumSegments returns the segment count of a download.
func (r *Response) NumSegments() int { return r.Header.Static.NumSegments }

// SegmentNumber returns the segment carried by a download response.
func (r *Response) SegmentNumber() (n int, last bool) {
	if r.Header.Mutable.SegmentNumber == nil {
		return 0, false
	}
	return r.Header.Mutable.SegmentNumber.Number, r.Header.Mutable.SegmentNumber.LastSegment
}

// OrderID returns the order id reported by the bank, if any.
func (r *Response) OrderID() string { return r.Header.Mutable.OrderID }

// OrderData returns the order data segment, if any.
func (r *Response) OrderData() []byte {
	if r.Body.DataTransfer == nil {
		return nil
	}
	return r.Body.DataTransfer.OrderData
}

// EncryptionInfo returns the transaction key info, if any.
func (r *Response) EncryptionInfo() *DataEncryptionInfo {
	if r.Body.DataTransfer == nil {
		return nil
	}
	return r.Body.DataTransfer.DataEncryptionInfo
}

// NewResponse creates a response document with the given codes. It is used
// by bank side implementations and tests.
func NewResponse(v Version, root string, phase string, technical, business ReturnCode) *Response {
	r := &Response{
		XMLName:  xml.Name{Space: v.Namespace(), Local: root},
		Version:  string(v),
		Revision: 1,
		Header: ResponseHeader{
			Authenticate: true,
			Mutable: ResponseMutable{
				TransactionPhase: phase,
				ReturnCode:       string(technical),
				ReportText:       technical.Name(),
			},
		},
	}
	if business != "" {
		r.Body.ReturnCode = &BodyReturnCode{Authenticate: true, Value: string(business)}
	}
	if root == RootKeyManagementResponse {
		r.Header.Mutable.TransactionPhase = ""
	}
	return r
}

// Marshal serializes the response with an XML declaration.
func (r *Response) Marshal() ([]byte, error) {
	return MarshalDocument(r)
}
