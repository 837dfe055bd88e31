package payment

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// usdcContracts maps the supported networks to their USDC token contract.
var usdcContracts = map[string]string{
	"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
}

// Requirement is one accepted payment scheme advertised in a 402 challenge.
type Requirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Asset             string            `json:"asset"`
	Extra             map[string]string `json:"extra"`
}

// Challenge is the 402 response body.
type Challenge struct {
	X402Version int           `json:"x402Version"`
	Error       string        `json:"error"`
	Accepts     []Requirement `json:"accepts"`
}

// Payment is the decoded X-PAYMENT header payload.
type Payment struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     PaymentPayload `json:"payload"`
}

// PaymentPayload carries the signed transfer authorization.
type PaymentPayload struct {
	Signature     string          `json:"signature"`
	Authorization *Authorization  `json:"authorization"`
	EIP712Domain  json.RawMessage `json:"eip712Domain,omitempty"`
}

// Authorization mirrors the EIP-3009 transferWithAuthorization fields.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Config wires the gate from service configuration.
type Config struct {
	PayTo          string
	Network        string
	PriceUSD       float64
	FacilitatorURL string
}

// Gate enforces x402 payment on the routes it wraps. Structural checks run
// in-process; cryptographic verification is delegated to the facilitator
// when one is configured, and the gate fails closed if it cannot be reached.
type Gate struct {
	cfg     Config
	asset   string
	amount  string
	client  *http.Client
	logger  zerolog.Logger
	enabled bool
}

// NewGate builds a payment gate. An empty PayTo address disables enforcement
// so development setups stay free.
func NewGate(cfg Config, logger zerolog.Logger) *Gate {
	asset, ok := usdcContracts[cfg.Network]
	if !ok {
		asset = usdcContracts["base-sepolia"]
	}
	return &Gate{
		cfg:     cfg,
		asset:   asset,
		amount:  atomicUSDC(cfg.PriceUSD),
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		enabled: cfg.PayTo != "",
	}
}

// Enabled reports whether the gate enforces payment.
func (g *Gate) Enabled() bool { return g.enabled }

// Require wraps a handler with the payment check.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("X-Payment")
		if header == "" {
			g.challenge(w, r, "X-PAYMENT header is required")
			return
		}

		raw, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			g.challenge(w, r, "invalid payment encoding")
			return
		}
		var pay Payment
		if err := json.Unmarshal(raw, &pay); err != nil {
			g.challenge(w, r, "invalid payment payload")
			return
		}
		if err := g.validate(pay); err != nil {
			g.challenge(w, r, err.Error())
			return
		}

		if g.cfg.FacilitatorURL != "" {
			if err := g.verifyWithFacilitator(r, header); err != nil {
				g.logger.Warn().Err(err).Msg("payment: facilitator rejected payment")
				g.challenge(w, r, "payment verification failed")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) validate(pay Payment) error {
	if pay.X402Version != 1 {
		return fmt.Errorf("unsupported x402 version")
	}
	if pay.Scheme != "exact" {
		return fmt.Errorf("unsupported payment scheme")
	}
	if pay.Network != g.cfg.Network {
		return fmt.Errorf("payment network mismatch")
	}
	if pay.Payload.Signature == "" {
		return fmt.Errorf("payment signature is required")
	}
	if pay.Payload.Authorization == nil {
		return fmt.Errorf("payment authorization is required")
	}
	return nil
}

type verifyRequest struct {
	X402Version         int         `json:"x402Version"`
	PaymentHeader       string      `json:"paymentHeader"`
	PaymentRequirements Requirement `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason"`
}

func (g *Gate) verifyWithFacilitator(r *http.Request, header string) error {
	body, err := json.Marshal(verifyRequest{
		X402Version:         1,
		PaymentHeader:       header,
		PaymentRequirements: g.requirement(r),
	})
	if err != nil {
		return fmt.Errorf("encode verify request: %w", err)
	}

	resp, err := g.client.Post(g.cfg.FacilitatorURL+"/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}
	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if !verdict.IsValid {
		if verdict.InvalidReason != "" {
			return fmt.Errorf("payment invalid: %s", verdict.InvalidReason)
		}
		return fmt.Errorf("payment invalid")
	}
	return nil
}

func (g *Gate) challenge(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(Challenge{
		X402Version: 1,
		Error:       msg,
		Accepts:     []Requirement{g.requirement(r)},
	})
}

func (g *Gate) requirement(r *http.Request) Requirement {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return Requirement{
		Scheme:            "exact",
		Network:           g.cfg.Network,
		MaxAmountRequired: g.amount,
		Resource:          scheme + "://" + r.Host + r.URL.Path,
		Description:       "city map poster render",
		MimeType:          "application/json",
		PayTo:             g.cfg.PayTo,
		MaxTimeoutSeconds: 60,
		Asset:             g.asset,
		Extra:             map[string]string{"name": "USDC", "version": "2"},
	}
}

// atomicUSDC converts a USD price to USDC atomic units (6 decimals).
func atomicUSDC(price float64) string {
	return strconv.FormatInt(int64(math.Round(price*1e6)), 10)
}
