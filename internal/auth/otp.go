package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
)

const otpDigits = 6

// ErrInvalidFixedCode indicates a fixed OTP code that is not six digits.
var ErrInvalidFixedCode = errors.New("auth: fixed otp code must be six digits")

// CodeSource produces one-time login codes. The production source draws
// random six-digit codes; a fixed source pins the code for development
// and tests.
type CodeSource interface {
	Code() (string, error)
}

type randomCodeSource struct{}

// NewRandomCodeSource returns the production CodeSource backed by
// crypto/rand.
func NewRandomCodeSource() CodeSource {
	return randomCodeSource{}
}

func (randomCodeSource) Code() (string, error) {
	value, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, value), nil
}

type fixedCodeSource struct {
	code string
}

// NewFixedCodeSource returns a CodeSource that always yields the given
// six-digit code.
func NewFixedCodeSource(code string) (CodeSource, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != otpDigits {
		return nil, ErrInvalidFixedCode
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return nil, ErrInvalidFixedCode
		}
	}
	return fixedCodeSource{code: trimmed}, nil
}

func (s fixedCodeSource) Code() (string, error) {
	return s.code, nil
}

// Deliverer hands a generated code to the user out of band. A real SMS
// gateway implements this; the default logs the code for local use.
type Deliverer interface {
	Deliver(ctx context.Context, phoneNumber, code string) error
}

type logDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer returns a Deliverer that writes codes to the log.
func NewLogDeliverer(logger *zap.Logger) Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logDeliverer{logger: logger}
}

func (d *logDeliverer) Deliver(_ context.Context, phoneNumber, code string) error {
	d.logger.Info("otp code issued",
		zap.String("phone_number", phoneNumber),
		zap.String("code", code))
	return nil
}
