package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/predictor"
)

func encodeMetrics(e *jx.Encoder, m predictor.Metrics) {
	importance := func(e *jx.Encoder, name string, fs []predictor.FeatureImportance) {
		e.Field(name, func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, f := range fs {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "feature", f.Feature)
						floatField(e, "importance", f.Importance)
					})
				}
			})
		})
	}
	e.Obj(func(e *jx.Encoder) {
		floatField(e, "churn_accuracy", m.ChurnAccuracy)
		floatField(e, "spending_r2", m.SpendR2)
		floatField(e, "spending_rmse", m.SpendRMSE)
		intField(e, "training_samples", m.TrainSamples)
		intField(e, "test_samples", m.TestSamples)
		importance(e, "churn_feature_importance", m.ChurnImportance)
		importance(e, "spending_feature_importance", m.SpendImportance)
	})
}

func encodePrediction(e *jx.Encoder, p predictor.CustomerPrediction) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "customer_id", p.CustomerID)
		strField(e, "customer_name", p.CustomerName)
		boolField(e, "will_churn", p.WillChurn)
		floatField(e, "churn_probability", p.ChurnProbability)
		floatField(e, "predicted_spending", p.PredictedSpend)
		strField(e, "risk_level", p.RiskLevel)
		if !p.ScoredAt.IsZero() {
			timeField(e, "timestamp", p.ScoredAt)
		}
		e.Field("insights", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, m := range p.Messages {
					e.Str(m)
				}
			})
		})
	})
}

func (h *Handler) modelHealth(w http.ResponseWriter, _ *http.Request) {
	metrics, trainedAt, err := h.Model.Metrics()
	ready := err == nil
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		if ready {
			strField(e, "status", "healthy")
		} else {
			strField(e, "status", "not_trained")
		}
		boolField(e, "models_loaded", ready)
		if !ready {
			return
		}
		timeField(e, "trained_at", trainedAt)
		e.Field("metrics", func(e *jx.Encoder) { encodeMetrics(e, metrics) })
	})
}

// train regenerates the synthetic dataset, fits the model and saves it.
func (h *Handler) train(w http.ResponseWriter, r *http.Request) {
	seed := h.cfg.TrainingSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	metrics, err := h.Model.Retrain(h.cfg.TrainingSamples, seed, h.cfg.ModelDir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		strField(e, "status", "success")
		strField(e, "message", "Models retrained successfully")
		intField(e, "training_samples", metrics.TrainSamples)
		e.Field("metrics", func(e *jx.Encoder) { encodeMetrics(e, metrics) })
		timeField(e, "timestamp", time.Now())
	})
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	p, err := h.Insights.PredictCustomer(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePrediction(e, *p) })
}

// queryLimit reads a positive ?limit= or returns def when it is absent.
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Invalid("limit", "must be a positive integer")
	}
	return n, nil
}

func encodePredictions(e *jx.Encoder, name string, ps []predictor.CustomerPrediction) {
	e.Field(name, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range ps {
				encodePrediction(e, p)
			}
		})
	})
}

// batchPredict scores every customer. Only the first predictor.BatchLimit
// predictions are returned.
func (h *Handler) batchPredict(w http.ResponseWriter, r *http.Request) {
	b, err := h.Insights.BatchPredict(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		strField(e, "status", "success")
		intField(e, "total_processed", b.Processed)
		encodePredictions(e, "predictions", b.Predictions)
		timeField(e, "timestamp", b.ScoredAt)
	})
}

func (h *Handler) recentPredictions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.Insights.Recent(limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		encodePredictions(e, "predictions", ps)
		intField(e, "total", len(ps))
		timeField(e, "timestamp", time.Now())
	})
}

func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, h.cfg.InsightsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := h.Insights.Insights(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		intField(e, "total_customers_analyzed", rep.Analyzed)
		intField(e, "high_risk_customers", rep.HighRisk)
		intField(e, "medium_risk_customers", rep.MediumRisk)
		intField(e, "low_risk_customers", rep.LowRisk)
		floatField(e, "avg_churn_probability", rep.AvgChurnProbability)
		floatField(e, "total_predicted_revenue", rep.TotalPredictedRevenue)
		encodePredictions(e, "top_spenders", rep.TopSpenders)
		timeField(e, "trained_at", rep.TrainedAt)
		e.Field("model_metrics", func(e *jx.Encoder) { encodeMetrics(e, rep.Metrics) })
	})
}
