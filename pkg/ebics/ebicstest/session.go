package ebicstest

import (
	"testing"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/session"
)

// PartnerID is the partner of sessions created by NewSession.
const PartnerID = "PARTNER1"

// NewSession creates a new subscriber session against b with fresh keys.
// The subscriber starts in StatusNew without bank keys.
func (b *Bank) NewSession(tb testing.TB, version message.Version, userID string) *session.Session {
	tb.Helper()
	keys, err := b.provider.GenerateKeyMaterial("CN=" + userID)
	if err != nil {
		tb.Fatalf("generate subscriber keys: %v", err)
	}
	s, err := session.New(
		&session.User{ID: userID, Name: userID, DN: "CN=" + userID, Version: version, Keys: keys},
		&session.Bank{URL: b.URL(), HostID: HostID, Name: "Test Bank", UseCertificates: b.useCertificates},
		&session.Partner{ID: PartnerID},
		session.Product{Name: "go-ebics test", Language: "en"},
		nil,
	)
	if err != nil {
		tb.Fatalf("create session: %v", err)
	}
	return s
}

// Subscribe registers the session's keys with the bank directly and puts
// the session in StatusReady with the bank keys set.
func (b *Bank) Subscribe(tb testing.TB, s *session.Session) {
	tb.Helper()
	keys := s.User.Keys

	b.mu.Lock()
	sub := b.subscriber(s.Partner.ID, s.User.ID)
	sub.signature = registered(keys, security.PurposeSignature)
	sub.auth = registered(keys, security.PurposeAuthentication)
	sub.encryption = registered(keys, security.PurposeEncryption)
	sub.revoked = false
	b.mu.Unlock()

	mode := s.Bank.DigestMode()
	bankKeys, err := security.NewBankKeys(mode,
		b.keys.PublicKey(security.PurposeAuthentication),
		b.keys.PublicKey(security.PurposeEncryption),
		b.keys.Pair(security.PurposeAuthentication).Certificate,
		b.keys.Pair(security.PurposeEncryption).Certificate,
	)
	if err != nil {
		tb.Fatalf("bank keys: %v", err)
	}
	s.Bank.Keys = bankKeys
	s.User.Status = session.StatusReady
}

func registered(keys *security.KeyMaterial, purpose security.KeyPurpose) *registeredKey {
	return &registeredKey{pub: keys.PublicKey(purpose), cert: keys.Pair(purpose).Certificate}
}
