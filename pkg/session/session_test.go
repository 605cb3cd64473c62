package session

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/message"
)

var orderIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)

func TestNextOrderID_Boundaries(t *testing.T) {
	tests := []struct {
		name        string
		counter     int
		wantID      string
		wantCounter int
	}{
		{"fresh counter", 0, "A000", minOrderCounter},
		{"last value below range", 46655, "A000", minOrderCounter},
		{"just below minimum", minOrderCounter - 1, "A000", minOrderCounter},
		{"minimum", minOrderCounter, "A001", minOrderCounter + 1},
		{"digit carry", minOrderCounter + 35, "A010", minOrderCounter + 36},
		{"letter carry", minOrderCounter + 36*36*36 - 1, "B000", minOrderCounter + 36*36*36},
		{"before maximum", maxOrderCounter - 1, "ZZZZ", maxOrderCounter},
		{"maximum wraps", maxOrderCounter, "A000", minOrderCounter},
		{"negative", -5, "A000", minOrderCounter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, next := NextOrderID(tt.counter)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantCounter, next)
		})
	}
}

func TestNextOrderID_Format(t *testing.T) {
	for _, start := range []int{0, 46655, minOrderCounter, 1000000, maxOrderCounter - 50} {
		counter := start
		for i := 0; i < 200; i++ {
			var id string
			id, counter = NextOrderID(counter)
			require.Regexp(t, orderIDPattern, id)
		}
	}
}

func TestPartner_NextOrderID(t *testing.T) {
	p := &Partner{ID: "PARTNER1", OrderCounter: 46655}
	assert.Equal(t, "A000", p.NextOrderID())
	assert.Equal(t, "A001", p.NextOrderID())
	assert.Equal(t, minOrderCounter+1, p.OrderCounter)
}

func TestFormatOrderID(t *testing.T) {
	assert.Equal(t, "A000", FormatOrderID(minOrderCounter))
	assert.Equal(t, "ZZZZ", FormatOrderID(maxOrderCounter))
	assert.Equal(t, "0000", FormatOrderID(0))
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		current  Status
		action   Action
		wantNext Status
		wantSkip bool
		wantErr  bool
	}{
		{"INI from new", StatusNew, ActionRegisterSignature, StatusSignatureRegistered, false, false},
		{"INI after HIA", StatusAuthenticationRegistered, ActionRegisterSignature, StatusInitialized, false, false},
		{"INI twice", StatusSignatureRegistered, ActionRegisterSignature, StatusSignatureRegistered, true, false},
		{"INI when ready", StatusReady, ActionRegisterSignature, StatusReady, true, false},
		{"INI after revoke", StatusSuspended, ActionRegisterSignature, StatusSignatureRegistered, false, false},
		{"HIA from new", StatusNew, ActionRegisterAuthentication, StatusAuthenticationRegistered, false, false},
		{"HIA after INI", StatusSignatureRegistered, ActionRegisterAuthentication, StatusInitialized, false, false},
		{"HIA twice", StatusInitialized, ActionRegisterAuthentication, StatusInitialized, true, false},
		{"HPB initialized", StatusInitialized, ActionFetchBankKeys, StatusReady, false, false},
		{"HPB refresh", StatusReady, ActionFetchBankKeys, StatusReady, false, false},
		{"HPB too early", StatusSignatureRegistered, ActionFetchBankKeys, StatusSignatureRegistered, false, true},
		{"SPR ready", StatusReady, ActionRevoke, StatusSuspended, false, false},
		{"SPR new", StatusNew, ActionRevoke, StatusNew, false, true},
		{"transfer ready", StatusReady, ActionTransfer, StatusReady, false, false},
		{"transfer uninitialized", StatusInitialized, ActionTransfer, StatusInitialized, false, true},
		{"transfer suspended", StatusSuspended, ActionTransfer, StatusSuspended, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, skip, err := Transition(tt.current, tt.action)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, tt.wantSkip, skip)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIllegalState)
				var serr *StateError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, tt.action, serr.Action)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, _, err := Transition(StatusReady, Action("XYZ"))
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	for s := StatusNew; s <= StatusSuspended; s++ {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("bogus")
	assert.Error(t, err)
	assert.Equal(t, "status(42)", Status(42).String())
}

func testSession() (*User, *Bank, *Partner, Product) {
	return &User{ID: "USER1", Version: message.H004},
		&Bank{URL: "https://ebics.example.com/ebicsweb", HostID: "EBIXHOST"},
		&Partner{ID: "PARTNER1"},
		Product{Name: "go-ebics", Language: "de"}
}

func TestNew_Validation(t *testing.T) {
	user, bank, partner, product := testSession()
	s, err := New(user, bank, partner, product, map[string]string{"FORMAT": "pain.001"})
	require.NoError(t, err)
	v, ok := s.Param("FORMAT")
	assert.True(t, ok)
	assert.Equal(t, "pain.001", v)

	h := s.Header()
	assert.Equal(t, "EBIXHOST", h.HostID)
	assert.Equal(t, "PARTNER1", h.PartnerID)
	assert.Equal(t, "USER1", h.UserID)
	assert.Equal(t, message.H004, h.Version)

	t.Run("missing bank url", func(t *testing.T) {
		user, bank, partner, product := testSession()
		bank.URL = ""
		_, err := New(user, bank, partner, product, nil)
		assert.Error(t, err)
	})

	t.Run("unknown version", func(t *testing.T) {
		user, bank, partner, product := testSession()
		user.Version = "H003"
		_, err := New(user, bank, partner, product, nil)
		assert.Error(t, err)
	})

	t.Run("nil partner", func(t *testing.T) {
		user, bank, _, product := testSession()
		_, err := New(user, bank, nil, product, nil)
		assert.Error(t, err)
	})
}
