// ABOUTME: ATXP payment receipts carried in the X-PAYMENT header as HS256-signed JWTs
// ABOUTME: Verifies signature and expiry and exposes the payment claims

package atxp

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Receipt verification failures.
var (
	ErrMissingPayment     = errors.New("missing X-PAYMENT receipt")
	ErrInvalidReceipt     = errors.New("invalid payment receipt")
	ErrExpiredReceipt     = errors.New("payment receipt expired")
	ErrWrongDestination   = errors.New("payment sent to a different destination")
	ErrWrongTool          = errors.New("payment receipt is for a different tool")
	ErrInsufficientAmount = errors.New("payment amount below tool price")
	ErrReplayedReceipt    = errors.New("payment receipt already used")
	ErrSettlement         = errors.New("payment settlement failed")
)

// Receipt is a verified payment for one tool call.
type Receipt struct {
	ID          string
	Payer       string
	Destination string
	Tool        string
	Amount      float64 // USD
	ExpiresAt   time.Time
}

// receiptClaims is the JWT payload issued by the facilitator.
type receiptClaims struct {
	Destination string  `json:"dest"`
	Tool        string  `json:"tool"`
	Amount      float64 `json:"amount"`
	jwt.RegisteredClaims
}

// ReceiptVerifier checks receipt signatures with a shared secret.
type ReceiptVerifier struct {
	secret []byte
}

// NewReceiptVerifier creates a verifier for receipts signed with secret.
func NewReceiptVerifier(secret []byte) *ReceiptVerifier {
	return &ReceiptVerifier{secret: secret}
}

// Verify parses and validates a receipt token. Receipts must carry an ID and an expiry.
func (v *ReceiptVerifier) Verify(token string) (*Receipt, error) {
	var claims receiptClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredReceipt
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidReceipt
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidReceipt)
	}

	return &Receipt{
		ID:          claims.ID,
		Payer:       claims.Subject,
		Destination: claims.Destination,
		Tool:        claims.Tool,
		Amount:      claims.Amount,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Issue signs a receipt. Facilitators and tests use it to mint X-PAYMENT values.
func (v *ReceiptVerifier) Issue(r Receipt) (string, error) {
	claims := receiptClaims{
		Destination: r.Destination,
		Tool:        r.Tool,
		Amount:      r.Amount,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        r.ID,
			Subject:   r.Payer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(r.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
