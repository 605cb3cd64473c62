package security

// Algorithm URIs used in EBICS signatures and digests
const (
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"
)

// Namespaces
const (
	NSXMLDSig = "http://www.w3.org/2000/09/xmldsig#"
)

// Key versions as they appear on the wire
const (
	SignatureVersion      = "A005"
	AuthenticationVersion = "X002"
	EncryptionVersion     = "E002"
)

// KeyPurpose names one of the three subscriber key pairs.
type KeyPurpose string

const (
	PurposeSignature      KeyPurpose = SignatureVersion
	PurposeAuthentication KeyPurpose = AuthenticationVersion
	PurposeEncryption     KeyPurpose = EncryptionVersion
)

// Purposes lists the subscriber key purposes in registration order.
func Purposes() []KeyPurpose {
	return []KeyPurpose{PurposeSignature, PurposeAuthentication, PurposeEncryption}
}
