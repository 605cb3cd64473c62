package security

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// AuthReferenceURI selects every element that takes part in the X002 signature.
const AuthReferenceURI = "#xpointer(//*[@authenticate='true'])"

// ErrNoAuthSignature is returned by VerifyAuthSignature when the document
// carries no AuthSignature element.
var ErrNoAuthSignature = errors.New("no AuthSignature element")

// Authenticator produces X002 signatures. KeyMaterial implements it.
type Authenticator interface {
	Authenticate(data []byte) ([]byte, error)
}

// AuthSigner adds the X002 AuthSignature to EBICS request and response documents.
type AuthSigner struct {
	auth Authenticator
}

// NewAuthSigner creates a signer using the given authentication key.
func NewAuthSigner(auth Authenticator) *AuthSigner {
	return &AuthSigner{auth: auth}
}

// Sign computes the digest over the canonical form of all elements marked
// authenticate="true", signs the SignedInfo and inserts AuthSignature
// immediately before the body element. An existing AuthSignature is replaced.
func (s *AuthSigner) Sign(document []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("no root element found")
	}

	if old := childByLocalName(root, "AuthSignature"); old != nil {
		root.RemoveChild(old)
	}
	body := childByLocalName(root, "body")
	if body == nil {
		return nil, fmt.Errorf("body element not found")
	}

	digest, err := authenticatedDigest(root)
	if err != nil {
		return nil, err
	}

	authSig := etree.NewElement("AuthSignature")
	signedInfo := authSig.CreateElement("ds:SignedInfo")
	// exclusive c14n only renders prefixes declared on the processed element
	signedInfo.CreateAttr("xmlns:ds", NSXMLDSig)
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", AuthReferenceURI)
	ref.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", AlgorithmC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	canonical, err := canonicalize(signedInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize SignedInfo: %w", err)
	}
	signature, err := s.auth.Authenticate([]byte(canonical))
	if err != nil {
		return nil, err
	}
	sigValue := authSig.CreateElement("ds:SignatureValue")
	sigValue.CreateAttr("xmlns:ds", NSXMLDSig)
	sigValue.SetText(base64.StdEncoding.EncodeToString(signature))

	root.InsertChildAt(body.Index(), authSig)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed document: %w", err)
	}
	return out, nil
}

// VerifyAuthSignature checks the AuthSignature of document against the
// X002 public key of its sender.
func VerifyAuthSignature(document []byte, pub *rsa.PublicKey) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("no root element found")
	}
	authSig := childByLocalName(root, "AuthSignature")
	if authSig == nil {
		return ErrNoAuthSignature
	}
	signedInfo := childByLocalName(authSig, "SignedInfo")
	sigValue := childByLocalName(authSig, "SignatureValue")
	if signedInfo == nil || sigValue == nil {
		return cryptoErr("verify authentication signature", errors.New("incomplete AuthSignature"))
	}
	ref := childByLocalName(signedInfo, "Reference")
	if ref == nil || ref.SelectAttrValue("URI", "") != AuthReferenceURI {
		return cryptoErr("verify authentication signature", errors.New("unexpected reference"))
	}
	digestValue := childByLocalName(ref, "DigestValue")
	if digestValue == nil {
		return cryptoErr("verify authentication signature", errors.New("missing DigestValue"))
	}
	expected, err := base64.StdEncoding.DecodeString(digestValue.Text())
	if err != nil {
		return cryptoErr("verify authentication signature", err)
	}

	digest, err := authenticatedDigest(root)
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, expected) {
		return cryptoErr("verify authentication signature", errors.New("digest mismatch"))
	}

	signature, err := base64.StdEncoding.DecodeString(sigValue.Text())
	if err != nil {
		return cryptoErr("verify authentication signature", err)
	}
	canonical, err := canonicalize(signedInfo)
	if err != nil {
		return cryptoErr("verify authentication signature", err)
	}
	return VerifyAuthentication(pub, []byte(canonical), signature)
}

// authenticatedDigest hashes the concatenated canonical forms of the
// authenticate="true" elements in document order.
func authenticatedDigest(root *etree.Element) ([]byte, error) {
	elements := authenticatedElements(root, nil)
	if len(elements) == 0 {
		return nil, cryptoErr("authentication digest", errors.New("no authenticated elements"))
	}
	h := sha256.New()
	for _, elem := range elements {
		canonical, err := canonicalize(elem)
		if err != nil {
			return nil, cryptoErr("authentication digest", err)
		}
		h.Write([]byte(canonical))
	}
	return h.Sum(nil), nil
}

func authenticatedElements(elem *etree.Element, acc []*etree.Element) []*etree.Element {
	if elem.SelectAttrValue("authenticate", "") == "true" {
		// nested authenticated elements are covered by their ancestor
		return append(acc, elem)
	}
	for _, child := range elem.ChildElements() {
		acc = authenticatedElements(child, acc)
	}
	return acc
}

// canonicalize renders elem in exclusive c14n. The namespaces the subtree
// uses are declared on a copy of elem first, since c14n of a detached
// element cannot see declarations on its ancestors.
func canonicalize(elem *etree.Element) (string, error) {
	apex := elem.Copy()
	for _, prefix := range usedPrefixes(elem, nil) {
		if declares(apex, prefix) {
			continue
		}
		uri := lookupNamespace(elem, prefix)
		if uri == "" {
			continue
		}
		if prefix == "" {
			apex.CreateAttr("xmlns", uri)
		} else {
			apex.CreateAttr("xmlns:"+prefix, uri)
		}
	}
	c14n := signedxml.ExclusiveCanonicalization{WithComments: false}
	return c14n.ProcessElement(apex, "")
}

// usedPrefixes lists the element and attribute prefixes used in the
// subtree of elem, "" for unprefixed elements.
func usedPrefixes(elem *etree.Element, acc []string) []string {
	add := func(prefix string) {
		if prefix == "xmlns" || prefix == "xml" {
			return
		}
		for _, p := range acc {
			if p == prefix {
				return
			}
		}
		acc = append(acc, prefix)
	}
	add(elem.Space)
	for _, attr := range elem.Attr {
		if attr.Space != "" {
			add(attr.Space)
		}
	}
	for _, child := range elem.ChildElements() {
		acc = usedPrefixes(child, acc)
	}
	return acc
}

func declares(elem *etree.Element, prefix string) bool {
	for _, attr := range elem.Attr {
		if declaresPrefix(attr, prefix) {
			return true
		}
	}
	return false
}

func declaresPrefix(attr etree.Attr, prefix string) bool {
	if prefix == "" {
		return attr.Space == "" && attr.Key == "xmlns"
	}
	return attr.Space == "xmlns" && attr.Key == prefix
}

// lookupNamespace resolves prefix from the declarations on elem and its
// ancestors.
func lookupNamespace(elem *etree.Element, prefix string) string {
	for e := elem; e != nil; e = e.Parent() {
		for _, attr := range e.Attr {
			if declaresPrefix(attr, prefix) {
				return attr.Value
			}
		}
	}
	return ""
}

func childByLocalName(parent *etree.Element, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}
