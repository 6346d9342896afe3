// Package server exposes the cap table engines over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/iwvelando/equity-waterfall/internal/analysis"
	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/rounds"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/validation"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type handler struct {
	logger        *zap.Logger
	service       *analysis.Service
	maxUploadSize int64
	version       string
}

// NewHandler constructs the HTTP handler for the analysis API. Requests that
// name a companyId instead of carrying a cap table are resolved against
// service's configured companies.
func NewHandler(logger *zap.Logger, service *analysis.Service, maxUploadSize int64, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if service == nil {
		service = analysis.NewService(logger, nil)
	}
	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{logger: logger, service: service, maxUploadSize: maxUploadSize, version: trimmedVersion}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ownership", h.handleOwnership)
	mux.HandleFunc("POST /api/round", h.handleRound)
	mux.HandleFunc("POST /api/waterfall", h.handleWaterfall)
	mux.HandleFunc("POST /api/sensitivity", h.handleSensitivity)
	mux.HandleFunc("POST /api/portfolio", h.handlePortfolio)
	mux.HandleFunc("GET /api/companies", h.handleCompanies)
	mux.HandleFunc("GET /api/companies/{id}/waterfall", h.handleCompanyWaterfall)
	mux.HandleFunc("GET /api/version", h.handleVersion)
	mux.HandleFunc("POST /api/config/export", h.handleConfigExport)
	return mux
}

// capTableRequest is embedded by every request that operates on one company.
// CapTable wins over CompanyID when both are present.
type capTableRequest struct {
	CompanyID string             `json:"companyId,omitempty"`
	CapTable  *captable.CapTable `json:"capTable,omitempty"`
	Fund      *captable.Fund     `json:"fund,omitempty"`
}

type ownershipResponse struct {
	CapTable captable.CapTable `json:"capTable"`
	Warnings []string          `json:"warnings,omitempty"`
}

type roundRequest struct {
	capTableRequest
	Round rounds.Params `json:"round"`
}

type roundResponse struct {
	Available bool           `json:"available"`
	Result    *rounds.Result `json:"result,omitempty"`
}

type waterfallRequest struct {
	capTableRequest
	ExitValuation *float64 `json:"exitValuation"`
}

type sensitivityRequest struct {
	capTableRequest
	Options sensitivity.Options `json:"options"`
}

type portfolioRequest struct {
	Fund      *captable.Fund   `json:"fund,omitempty"`
	Companies []config.Company `json:"companies,omitempty"`
}

type companySummary struct {
	portfolio.Company
	ImpliedValuation float64   `json:"impliedValuation"`
	ExitScenarios    []float64 `json:"exitScenarios,omitempty"`
	LastRound        string    `json:"lastRound"`
	TotalShares      int64     `json:"totalShares"`
}

func (h *handler) handleOwnership(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleOwnership"

	var req capTableRequest
	if !h.decode(w, r, &req, op) {
		return
	}
	service, ct, ok := h.resolve(w, req, op)
	if !ok {
		return
	}

	out, err := service.Ownership(ct)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, ownershipResponse{
		CapTable: out,
		Warnings: validation.CapTableWarnings(out, service.Fund().ID),
	})
}

func (h *handler) handleRound(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRound"

	var req roundRequest
	if !h.decode(w, r, &req, op) {
		return
	}
	service, ct, ok := h.resolve(w, req.capTableRequest, op)
	if !ok {
		return
	}

	result, available, err := service.ModelRound(ct, req.Round)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, roundResponse{Available: available, Result: result})
}

func (h *handler) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleWaterfall"

	var req waterfallRequest
	if !h.decode(w, r, &req, op) {
		return
	}
	if req.ExitValuation == nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "exitValuation is required", op)
		return
	}
	service, ct, ok := h.resolve(w, req.capTableRequest, op)
	if !ok {
		return
	}

	result, err := service.Waterfall(ct, *req.ExitValuation)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSensitivity"

	var req sensitivityRequest
	if !h.decode(w, r, &req, op) {
		return
	}
	service, ct, ok := h.resolve(w, req.capTableRequest, op)
	if !ok {
		return
	}

	report, err := service.Sensitivity(r.Context(), ct, req.Options)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePortfolio"

	var req portfolioRequest
	if !h.decode(w, r, &req, op) {
		return
	}
	service := h.service
	if req.Fund != nil {
		service = service.ForFund(*req.Fund)
	}
	companies := req.Companies
	if len(companies) == 0 {
		companies = service.Companies()
	}

	report, err := service.Portfolio(companies)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handleCompanies(w http.ResponseWriter, r *http.Request) {
	companies := h.service.Companies()
	out := make([]companySummary, 0, len(companies))
	for _, c := range companies {
		lastRound := portfolio.NoRound
		if round, ok := c.CapTable.LastRound(); ok {
			lastRound = round.Name
		}
		out = append(out, companySummary{
			Company:          c.Company,
			ImpliedValuation: c.ImpliedValuation,
			ExitScenarios:    c.ExitScenarios,
			LastRound:        lastRound,
			TotalShares:      c.CapTable.TotalShares,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleCompanyWaterfall(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCompanyWaterfall"

	company, err := h.service.Company(r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}

	rawExit := strings.TrimSpace(r.URL.Query().Get("exit"))
	if rawExit == "" {
		h.respondErrorWithOp(w, http.StatusBadRequest, "exit query parameter is required", op)
		return
	}
	exit, err := strconv.ParseFloat(rawExit, 64)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid exit valuation %q", rawExit), op)
		return
	}

	result, err := h.service.Waterfall(company.CapTable, exit)
	if err != nil {
		h.respondServiceError(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleConfigExport(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleConfigExport"

	var payload map[string]interface{}
	if !h.decode(w, r, &payload, op) {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}

	yamlBytes, err := marshalOrderedConfigYAML(payload)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to encode configuration: %v", err), op)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"configYaml": string(yamlBytes),
	})
}

// exportKeyOrder lists the top-level configuration sections in the order a
// hand-written config file uses; other keys follow alphabetically.
var exportKeyOrder = []string{"logging", "output", "fund", "sensitivity", "waterfall", "companies"}

func marshalOrderedConfigYAML(payload map[string]interface{}) ([]byte, error) {
	items := make([]orderedItem, 0, len(payload))
	seen := make(map[string]struct{})

	for _, key := range exportKeyOrder {
		if value, ok := payload[key]; ok {
			items = append(items, orderedItem{key: key, value: value})
			seen[key] = struct{}{}
		}
	}

	remainingKeys := make([]string, 0, len(payload))
	for key := range payload {
		if _, already := seen[key]; !already {
			remainingKeys = append(remainingKeys, key)
		}
	}
	sort.Strings(remainingKeys)
	for _, key := range remainingKeys {
		items = append(items, orderedItem{key: key, value: payload[key]})
	}

	return yaml.Marshal(orderedConfig{items: items})
}

type orderedConfig struct {
	items []orderedItem
}

type orderedItem struct {
	key   string
	value interface{}
}

func (o orderedConfig) MarshalYAML() (interface{}, error) {
	mapNode := &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
	}

	for _, item := range o.items {
		keyNode := &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: item.key,
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(item.value); err != nil {
			return nil, err
		}
		mapNode.Content = append(mapNode.Content, keyNode, valueNode)
	}

	return mapNode, nil
}

// decode reads a JSON body into v, enforcing the upload limit. It writes the
// error response itself and reports whether decoding succeeded.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, op string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize), op)
			return false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
		return false
	}
	return true
}

// resolve picks the service for the request's fund and the cap table to work
// on, writing an error response when neither a cap table nor a known company
// id is given.
func (h *handler) resolve(w http.ResponseWriter, req capTableRequest, op string) (*analysis.Service, captable.CapTable, bool) {
	service := h.service
	if req.Fund != nil {
		service = service.ForFund(*req.Fund)
	}

	if req.CapTable != nil {
		return service, *req.CapTable, true
	}
	if req.CompanyID == "" {
		h.respondErrorWithOp(w, http.StatusBadRequest, "capTable or companyId is required", op)
		return nil, captable.CapTable{}, false
	}
	company, err := service.Company(req.CompanyID)
	if err != nil {
		h.respondServiceError(w, err, op)
		return nil, captable.CapTable{}, false
	}
	return service, company.CapTable, true
}

// respondServiceError maps engine errors to status codes: invalid data is
// 422, an unknown company 404, anything else 500.
func (h *handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	var vErr *captable.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.logger.Warn("request rejected",
			zap.String("op", op),
			zap.String("field", vErr.Field),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
			"field": vErr.Field,
		})
	case errors.Is(err, analysis.ErrUnknownCompany):
		h.respondErrorWithOp(w, http.StatusNotFound, err.Error(), op)
	default:
		h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
	}
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
