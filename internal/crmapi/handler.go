package crmapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"brokerdesk/internal/auth"
	"brokerdesk/internal/cache"
	"brokerdesk/internal/config"
	"brokerdesk/internal/entitlements"
	"brokerdesk/internal/observability"
	"brokerdesk/internal/store"
	"brokerdesk/internal/usage"
)

var ErrUsageLimitExceeded = errors.New("usage limit exceeded")

type Handler struct {
	Config    config.Config
	Store     *store.Store
	Cache     *cache.Cache
	Auth      *auth.Service
	Evaluator *entitlements.Evaluator
	Usage     *usage.Service
	Observer  *observability.EntitlementObserver
	Now       func() time.Time
}

func NewHandler(cfg config.Config, st *store.Store, c *cache.Cache, authSvc *auth.Service, eval *entitlements.Evaluator, usageSvc *usage.Service, observer *observability.EntitlementObserver) *Handler {
	return &Handler{
		Config:    cfg,
		Store:     st,
		Cache:     c,
		Auth:      authSvc,
		Evaluator: eval,
		Usage:     usageSvc,
		Observer:  observer,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/accounts/signup", h.handleSignup)
	mux.HandleFunc("/v1/entitlements/current", h.handleCurrentEntitlement)
	mux.HandleFunc("/v1/clients", h.handleClients)
	mux.HandleFunc("/v1/clients/", h.handleClientByID)
	mux.HandleFunc("/v1/subscriptions/choose", h.handleChoosePlan)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}

	trialEnd := h.Now().Add(time.Duration(h.Config.Entitlements.TrialDays) * 24 * time.Hour)
	account, err := h.Store.CreateTrialAccount(r.Context(), req.Email, trialEnd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":    account.ID,
		"plan":          account.Plan,
		"trial_ends_at": account.TrialEndsAt.Time,
		"usage_count":   account.UsageCount,
	})
}

func (h *Handler) handleCurrentEntitlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, err := h.requireAccount(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := h.loadAccount(r.Context(), principal.AccountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	decision := h.Evaluator.Evaluate(account, h.Now())
	if decision.Status == entitlements.StatusTrialActive {
		h.Observer.RecordTrialEnding(principal.AccountID, decision.DaysRemaining)
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listClients(w, r)
	case http.MethodPost:
		h.createClient(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requireAccount(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	account, err := h.loadAccount(r.Context(), principal.AccountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	decision := h.Evaluator.Evaluate(account, h.Now())
	if !decision.CanAccess {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": decision.Message})
		return
	}

	clients, err := h.Store.ListClientsByAccount(r.Context(), principal.AccountID, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	principal, err := h.requireAccount(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if ok, problems := validateJSON(clientPayloadSchema, payload); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid client payload", "details": problems})
		return
	}

	account, err := h.loadAccount(r.Context(), principal.AccountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	decision := h.Evaluator.Evaluate(account, h.Now())
	if !entitlements.CanPerform(decision, entitlements.Action{Kind: entitlements.ActionAddClient}) {
		reason := "read_only"
		message := decision.Message
		if decision.CanModify {
			reason = "usage_limit"
			message = ErrUsageLimitExceeded.Error()
		}
		h.Observer.RecordDeny(principal.AccountID, reason)
		writeJSON(w, http.StatusForbidden, map[string]any{"error": message})
		return
	}

	client, err := h.Store.CreateClient(r.Context(), store.ClientRecord{
		AccountID: principal.AccountID,
		FullName:  stringField(payload, "full_name"),
		Email:     stringField(payload, "email"),
		Phone:     stringField(payload, "phone"),
		Stage:     stringField(payload, "stage"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fresh, err := h.Usage.Increment(r.Context(), principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Observer.RecordAllow(principal.AccountID, "client_added", fresh.UsageCount, decision.UsageLimit)

	writeJSON(w, http.StatusCreated, map[string]any{
		"client":      clientJSON(client),
		"usage_count": fresh.UsageCount,
	})
}

func (h *Handler) handleClientByID(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimPrefix(r.URL.Path, "/v1/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, err := h.requireAccount(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := h.loadAccount(r.Context(), principal.AccountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	decision := h.Evaluator.Evaluate(account, h.Now())
	if !entitlements.CanPerform(decision, entitlements.Action{Kind: entitlements.ActionEditRecords}) {
		h.Observer.RecordDeny(principal.AccountID, "read_only")
		writeJSON(w, http.StatusForbidden, map[string]any{"error": decision.Message})
		return
	}

	deleted, err := h.Store.DeleteClientForAccount(r.Context(), principal.AccountID, clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.NotFound(w, r)
		return
	}

	fresh, err := h.Usage.Decrement(r.Context(), principal)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":     true,
		"usage_count": fresh.UsageCount,
	})
}

// handleChoosePlan is the placeholder plan-change action: it stamps the plan
// and a 30-day subscription window and hands back a mock checkout URL. Real
// payment processing lives outside this service.
func (h *Handler) handleChoosePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	principal, err := h.requireAccount(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	plan := entitlements.ParsePlan(req.Plan)
	if plan != entitlements.PlanStandard && plan != entitlements.PlanPro {
		http.Error(w, "unknown plan", http.StatusBadRequest)
		return
	}

	now := h.Now()
	subscriptionEnd := sql.NullTime{Time: now.Add(30 * 24 * time.Hour), Valid: true}
	if err := h.Store.SetAccountPlan(r.Context(), principal.AccountID, string(plan), subscriptionEnd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Invalidate(r.Context(), principal.AccountID)
	}

	account, err := h.loadAccount(r.Context(), principal.AccountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkout_url": fmt.Sprintf("https://checkout.brokerdesk.app/pay/mock?account_id=%s&plan=%s", principal.AccountID, plan),
		"entitlement":  h.Evaluator.Evaluate(account, now),
	})
}

// loadAccount reads through the snapshot cache. An absent account is not an
// error here: the evaluator turns a nil record into the no-access decision.
func (h *Handler) loadAccount(ctx context.Context, accountID string) (*store.AccountRecord, error) {
	if h.Cache != nil {
		if account, err := h.Cache.GetAccount(ctx, accountID); err == nil {
			return &account, nil
		}
	}
	account, err := h.Store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if h.Cache != nil {
		_ = h.Cache.SetAccount(ctx, account)
	}
	return &account, nil
}

func (h *Handler) requireAccount(r *http.Request) (auth.Principal, error) {
	principal, err := h.Auth.AuthenticateRequest(r)
	if err != nil {
		return auth.Principal{}, err
	}
	if principal.AccountID == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return principal, nil
}

func (h *Handler) requireAdmin(r *http.Request) (auth.Principal, error) {
	principal, err := h.Auth.AuthenticateRequest(r)
	if err != nil {
		return auth.Principal{}, err
	}
	if !principal.Admin {
		return auth.Principal{}, auth.ErrForbidden
	}
	return principal, nil
}

var clientPayloadSchema = map[string]any{
	"type":     "object",
	"required": []any{"full_name"},
	"properties": map[string]any{
		"full_name": map[string]any{"type": "string", "minLength": 1},
		"email":     map[string]any{"type": "string"},
		"phone":     map[string]any{"type": "string"},
		"stage":     map[string]any{"type": "string", "enum": []any{"lead", "prospect", "active", "closed"}},
	},
	"additionalProperties": false,
}

func validateJSON(schema map[string]any, data map[string]any) (bool, []string) {
	if schema == nil {
		return true, nil
	}
	schemaBytes, _ := json.Marshal(schema)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaBytes)); err != nil {
		return false, []string{err.Error()}
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return false, []string{err.Error()}
	}
	if err := compiled.Validate(data); err != nil {
		return false, []string{err.Error()}
	}
	return true, nil
}

func stringField(payload map[string]any, key string) string {
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func clientJSON(c store.ClientRecord) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"account_id": c.AccountID,
		"full_name":  c.FullName,
		"email":      c.Email,
		"phone":      c.Phone,
		"stage":      c.Stage,
		"created_at": c.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
