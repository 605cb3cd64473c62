package ebics

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/session"
)

// revocationData is the order data an SPR signature covers.
var revocationData = []byte(" ")

// RegisterSignatureKey sends INI with the subscriber's A005 key. It returns
// the current status without contacting the bank when the key is already
// registered.
func (c *Client) RegisterSignatureKey(ctx context.Context, s *session.Session) (session.Status, error) {
	log := c.sessionLogger(s, string(order.AdminINI))
	current := s.User.Status
	next, skip, err := session.Transition(current, session.ActionRegisterSignature)
	if err != nil {
		return current, err
	}
	if skip {
		log.Info("signature key already registered", "status", current.String())
		return current, nil
	}
	if err := requireKeys(s, false); err != nil {
		return current, err
	}

	info, err := c.pubKeyInfo(s, security.PurposeSignature)
	if err != nil {
		return current, err
	}
	info.SignatureVersion = security.SignatureVersion
	orderData, err := c.compressDocument(message.NewSignaturePubKeyOrderData(s.User.Version, *info, s.Partner.ID, s.User.ID))
	if err != nil {
		return current, err
	}

	b, err := c.builder(s)
	if err != nil {
		return current, err
	}
	if _, err := c.exchange(ctx, s, b.INI(orderData), step{orderType: string(order.AdminINI)}); err != nil {
		return current, err
	}
	log.Info("signature key registered", "status", next.String())
	return next, nil
}

// RegisterAuthenticationKeys sends HIA with the X002 and E002 keys.
func (c *Client) RegisterAuthenticationKeys(ctx context.Context, s *session.Session) (session.Status, error) {
	log := c.sessionLogger(s, string(order.AdminHIA))
	current := s.User.Status
	next, skip, err := session.Transition(current, session.ActionRegisterAuthentication)
	if err != nil {
		return current, err
	}
	if skip {
		log.Info("authentication keys already registered", "status", current.String())
		return current, nil
	}
	if err := requireKeys(s, false); err != nil {
		return current, err
	}

	auth, err := c.pubKeyInfo(s, security.PurposeAuthentication)
	if err != nil {
		return current, err
	}
	auth.AuthenticationVersion = security.AuthenticationVersion
	enc, err := c.pubKeyInfo(s, security.PurposeEncryption)
	if err != nil {
		return current, err
	}
	enc.EncryptionVersion = security.EncryptionVersion
	orderData, err := c.compressDocument(message.NewHIARequestOrderData(s.User.Version, *auth, *enc, s.Partner.ID, s.User.ID))
	if err != nil {
		return current, err
	}

	b, err := c.builder(s)
	if err != nil {
		return current, err
	}
	if _, err := c.exchange(ctx, s, b.HIA(orderData), step{orderType: string(order.AdminHIA)}); err != nil {
		return current, err
	}
	log.Info("authentication keys registered", "status", next.String())
	return next, nil
}

// FetchBankKeys sends HPB and returns the bank's X002 and E002 keys. The
// key format must match the bank's digest mode, and the key hashes must
// match the expected hashes when the bank defines them.
func (c *Client) FetchBankKeys(ctx context.Context, s *session.Session) (*security.BankKeys, session.Status, error) {
	log := c.sessionLogger(s, string(order.AdminHPB))
	current := s.User.Status
	next, _, err := session.Transition(current, session.ActionFetchBankKeys)
	if err != nil {
		return nil, current, err
	}
	if err := requireKeys(s, false); err != nil {
		return nil, current, err
	}

	b, err := c.builder(s)
	if err != nil {
		return nil, current, err
	}
	st := step{phase: message.PhaseInitialisation, orderType: string(order.AdminHPB)}
	resp, err := c.exchange(ctx, s, b.HPB(), st)
	if err != nil {
		return nil, current, err
	}

	info := resp.EncryptionInfo()
	if info == nil || len(resp.OrderData()) == 0 {
		return nil, current, fmt.Errorf("%w: HPB response without order data", ErrInvalidResponse)
	}
	plain, err := s.User.Keys.Decrypt(resp.OrderData(), info.TransactionKey)
	if err != nil {
		return nil, current, err
	}
	inflated, err := c.compressor.Decompress(plain)
	if err != nil {
		return nil, current, fmt.Errorf("%w: HPB order data: %v", ErrInvalidResponse, err)
	}

	var data message.HPBResponseOrderData
	if err := message.UnmarshalDocument(inflated, &data); err != nil {
		return nil, current, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if data.HostID != "" && data.HostID != s.Bank.HostID {
		return nil, current, fmt.Errorf("%w: HPB answered for host %s", ErrInvalidResponse, data.HostID)
	}

	keys, err := bankKeysFrom(s.Bank.DigestMode(), &data)
	if err != nil {
		return nil, current, err
	}
	if err := keys.CheckDigests(s.Bank.ExpectedAuthenticationHash, s.Bank.ExpectedEncryptionHash); err != nil {
		return nil, current, err
	}

	log.Info("bank keys fetched", "status", next.String(), "digest_mode", keys.Mode.String())
	return keys, next, nil
}

func bankKeysFrom(mode security.DigestMode, data *message.HPBResponseOrderData) (*security.BankKeys, error) {
	authPub, authCert, err := keyFrom(&data.AuthenticationPubKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: bank authentication key: %v", ErrInvalidResponse, err)
	}
	encPub, encCert, err := keyFrom(&data.EncryptionPubKeyInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: bank encryption key: %v", ErrInvalidResponse, err)
	}
	// a bank exchanging bare keys must not be hashed via certificates
	if mode == security.DigestPublicKey && (data.AuthenticationPubKeyInfo.PubKeyValue == nil || data.EncryptionPubKeyInfo.PubKeyValue == nil) {
		return nil, fmt.Errorf("%w: bank delivered certificates only, expected bare keys", security.ErrDigestMode)
	}
	return security.NewBankKeys(mode, authPub, encPub, authCert, encCert)
}

func keyFrom(info *message.PubKeyInfo) (*rsa.PublicKey, *x509.Certificate, error) {
	cert, err := info.Certificate()
	if err != nil {
		return nil, nil, err
	}
	pub, err := info.PublicKey()
	if err != nil {
		return nil, nil, err
	}
	return pub, cert, nil
}

// RevokeSubscriber sends SPR. Afterwards the bank no longer trusts the
// subscriber keys; the caller should discard them and regenerate.
func (c *Client) RevokeSubscriber(ctx context.Context, s *session.Session) (session.Status, error) {
	log := c.sessionLogger(s, string(order.AdminSPR))
	current := s.User.Status
	next, _, err := session.Transition(current, session.ActionRevoke)
	if err != nil {
		return current, err
	}
	if err := requireKeys(s, true); err != nil {
		return current, err
	}

	env, err := c.seal(s, revocationData, true)
	if err != nil {
		return current, err
	}
	b, err := c.builder(s)
	if err != nil {
		return current, err
	}
	var orderID string
	if s.User.Version == message.H004 {
		orderID = s.Partner.NextOrderID()
	}

	req := b.SPR(orderID, env.digests, env.wrappedKey, env.signatureData)
	st := step{phase: message.PhaseInitialisation, orderType: string(order.AdminSPR)}
	if _, err := c.exchange(ctx, s, req, st); err != nil {
		return current, err
	}
	log.Info("subscriber revoked", "status", next.String(), "order_id", orderID)
	return next, nil
}

// pubKeyInfo renders one subscriber key. Certificates are sent when the bank
// uses them; the bare key is sent for bare-key banks and always in H004.
func (c *Client) pubKeyInfo(s *session.Session, purpose security.KeyPurpose) (*message.PubKeyInfo, error) {
	pair := s.User.Keys.Pair(purpose)
	cert := pair.Certificate
	if !s.Bank.UseCertificates {
		cert = nil
	} else if cert == nil {
		return nil, fmt.Errorf("%w: %s key has no certificate", security.ErrDigestMode, purpose)
	}
	withKeyValue := !s.Bank.UseCertificates || s.User.Version == message.H004
	timestamp := s.User.Keys.Provider().Now().Format(time.RFC3339)
	return message.NewPubKeyInfo(s.User.Keys.PublicKey(purpose), cert, withKeyValue, timestamp)
}

func (c *Client) compressDocument(doc any) ([]byte, error) {
	data, err := message.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	compressed, err := c.compressor.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compress order data: %w", err)
	}
	return compressed, nil
}
