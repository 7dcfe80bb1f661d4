package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/api/metrics"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

// Machine-readable failure reasons returned to the purchase system.
const (
	reasonInvalidPayload     = "invalid_payload"
	reasonMissingFields      = "missing_fields"
	reasonInvalidEmail       = "invalid_email"
	reasonProvisioningFailed = "provisioning_failed"
)

// ProvisioningHandler serves the purchase webhook. It never answers with a
// 5xx so the caller does not retry into a loop.
type ProvisioningHandler struct {
	service ports.ProvisioningService
	log     zerolog.Logger
}

func NewProvisioningHandler(service ports.ProvisioningService, log zerolog.Logger) *ProvisioningHandler {
	return &ProvisioningHandler{service: service, log: log}
}

// provisionRequest accepts snake_case, camelCase and PascalCase keys. The
// product id may arrive as a string or a number.
type provisionRequest struct {
	Email       string
	FirstName   string
	LastName    string
	ProductName string
	ProductID   string
}

var provisionKeys = []struct {
	aliases []string
	field   func(*provisionRequest) *string
}{
	{[]string{"email", "Email"}, func(r *provisionRequest) *string { return &r.Email }},
	{[]string{"first_name", "firstName", "FirstName"}, func(r *provisionRequest) *string { return &r.FirstName }},
	{[]string{"last_name", "lastName", "LastName"}, func(r *provisionRequest) *string { return &r.LastName }},
	{[]string{"product_name", "productName", "ProductName"}, func(r *provisionRequest) *string { return &r.ProductName }},
	{[]string{"product_id", "productId", "productID", "ProductId", "ProductID"}, func(r *provisionRequest) *string { return &r.ProductID }},
}

func (r *provisionRequest) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range provisionKeys {
		for _, alias := range k.aliases {
			v, ok := raw[alias]
			if !ok {
				continue
			}
			s, err := scalarString(v)
			if err != nil {
				return fmt.Errorf("%s: %w", alias, err)
			}
			if s != "" {
				*k.field(r) = s
				break
			}
		}
	}
	return nil
}

// scalarString renders a JSON string or number as text. null is empty.
func scalarString(v json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return "", err
	}
	switch t := x.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", errors.New("expected a string or number")
	}
}

type provisionResponse struct {
	Success    bool         `json:"success"`
	Outcome    string       `json:"outcome"`
	User       *userSummary `json:"user"`
	InviteLink string       `json:"invite_link,omitempty"`
}

type provisionError struct {
	Error  string   `json:"error"`
	Reason string   `json:"reason"`
	Fields []string `json:"fields,omitempty"`
}

// CreateUser creates or re-invites the buyer's identity.
//
// @Summary      Provision an identity after a purchase
// @Tags         provisioning
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      provisionRequest  true  "Buyer and product"
// @Success      200   {object}  provisionResponse
// @Failure      400   {object}  provisionError
// @Failure      401   {object}  provisionError
// @Router       /provisioning/create-user [post]
func (h *ProvisioningHandler) CreateUser(c echo.Context) error {
	var req provisionRequest
	if err := c.Bind(&req); err != nil {
		metrics.ProvisioningRequestsTotal.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, provisionError{Error: "invalid payload", Reason: reasonInvalidPayload})
	}

	result, err := h.service.Provision(c.Request().Context(), ports.ProvisionInput{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		ProductName: req.ProductName,
		ProductID:   req.ProductID,
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			metrics.ProvisioningRequestsTotal.WithLabelValues("invalid").Inc()
			reason := reasonMissingFields
			if ve.Reason == "invalid email" {
				reason = reasonInvalidEmail
			}
			return c.JSON(http.StatusBadRequest, provisionError{Error: ve.Error(), Reason: reason, Fields: ve.Fields})
		}
		metrics.ProvisioningRequestsTotal.WithLabelValues("failed").Inc()
		h.log.Error().Err(err).Str("email", req.Email).Msg("provisioning failed")
		return c.JSON(http.StatusBadRequest, provisionError{Error: "provisioning failed", Reason: reasonProvisioningFailed})
	}

	metrics.ProvisioningRequestsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return c.JSON(http.StatusOK, provisionResponse{
		Success:    true,
		Outcome:    string(result.Outcome),
		User:       toUserSummary(result.Identity),
		InviteLink: result.InviteLink,
	})
}
