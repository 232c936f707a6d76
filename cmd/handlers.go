package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/grocerpal/salewatch/internal/store"
)

func (e *appEnv) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items    string `json:"items"`
		Postcode string `json:"postcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := parseItems(req.Items)
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	postcode := req.Postcode
	if postcode == "" {
		postcode = cfg.Server.DefaultPostcode
	}
	if !validPostcode(postcode) {
		writeError(w, http.StatusBadRequest, "postcode must be 4 digits")
		return
	}

	resp, err := e.Checker.CheckItems(r.Context(), items, postcode)
	if err != nil {
		zap.L().Error("check request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *appEnv) handlePredict(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}
	retailer := r.URL.Query().Get("retailer")
	if retailer == "" {
		retailer = "woolworths"
	}

	pred, err := e.Predictor.ForProduct(r.Context(), e.Store, product, retailer, queryDays(r, 60))
	if err != nil {
		zap.L().Error("prediction failed", zap.String("product", product), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (e *appEnv) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := e.Store.ListTrackedProducts(r.Context())
	if err != nil {
		zap.L().Error("listing products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing products failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (e *appEnv) handleHistory(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}

	records, err := e.Store.QueryHistory(r.Context(), product, store.HistoryFilter{
		Retailer: r.URL.Query().Get("retailer"),
		DaysBack: queryDays(r, 30),
	})
	if err != nil {
		zap.L().Error("history query failed", zap.String("product", product), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "records": records})
}

func (e *appEnv) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}

	deleted, err := e.Store.DeleteProductHistory(r.Context(), product, r.URL.Query().Get("retailer"))
	if err != nil {
		zap.L().Error("history delete failed", zap.String("product", product), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (e *appEnv) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := e.Store.ListFavorites(r.Context())
	if err != nil {
		zap.L().Error("listing favorites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing favorites failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favorites})
}

func (e *appEnv) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductName string `json:"product_name"`
		Retailer    string `json:"retailer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProductName) == "" {
		writeError(w, http.StatusBadRequest, "product_name is required")
		return
	}
	if req.Retailer == "" {
		req.Retailer = "woolworths"
	}

	added, err := e.Store.AddFavorite(r.Context(), req.ProductName, req.Retailer)
	if err != nil {
		zap.L().Error("adding favorite failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "adding favorite failed")
		return
	}
	if !added {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already exists"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (e *appEnv) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	removed, err := e.Store.RemoveFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("removing favorite failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "removing favorite failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (e *appEnv) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.Cache.Snapshot())
}

func (e *appEnv) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	e.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (e *appEnv) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := e.Store.Stats(r.Context())
	if err != nil {
		zap.L().Error("store stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
