package workouts

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitlog/internal/telemetry/tracing"
	"github.com/2beens/fitlog/pkg"
)

const maxRequestBodySize = 1 << 16

type AddWorkoutResponse struct {
	Message string   `json:"message"`
	Workout *Workout `json:"workout"`
}

type DeleteWorkoutResponse struct {
	Message string `json:"message"`
	Deleted bool   `json:"deleted"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.list")
	defer span.End()

	query := r.URL.Query()
	list, err := handler.service.ListWorkouts(ctx, ListParams{
		Name:        query.Get("workout_name"),
		MinDuration: query.Get("min_duration"),
		MaxDuration: query.Get("max_duration"),
		MinDistance: query.Get("min_distance"),
		MaxDistance: query.Get("max_distance"),
		HeartRate:   query.Get("heart_rate"),
		StartDate:   query.Get("start_date"),
		EndDate:     query.Get("end_date"),
	})
	if err != nil {
		handleError(w, err, "unable to retrieve workouts")
		return
	}
	if list == nil {
		list = []Workout{}
	}

	pkg.WriteJSON(w, list, http.StatusOK)
}

func (handler *Handler) HandleTotalDistance(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.totaldistance")
	defer span.End()

	timeframe, err := ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		handleError(w, err, "")
		return
	}

	total, err := handler.service.TimeframeStats(ctx, timeframe, AggregationSum, MetricDistance)
	if err != nil {
		handleError(w, err, "unable to get total distance")
		return
	}

	pkg.WriteJSON(w, map[string]float64{"total_distance": total}, http.StatusOK)
}

// HandleAverageDuration responds in minutes, rounded to one decimal.
func (handler *Handler) HandleAverageDuration(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.avgduration")
	defer span.End()

	timeframe, err := ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		handleError(w, err, "")
		return
	}

	avgSeconds, err := handler.service.TimeframeStats(ctx, timeframe, AggregationAvg, MetricDuration)
	if err != nil {
		handleError(w, err, "unable to get average duration")
		return
	}

	minutes := math.Round(avgSeconds/60*10) / 10
	pkg.WriteJSON(w, map[string]float64{"avg_duration": minutes}, http.StatusOK)
}

func (handler *Handler) HandleAverageHeartRate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.avgheartrate")
	defer span.End()

	timeframe, err := ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		handleError(w, err, "")
		return
	}

	avg, err := handler.service.TimeframeStats(ctx, timeframe, AggregationAvg, MetricHeartRate)
	if err != nil {
		handleError(w, err, "unable to get average heart rate")
		return
	}

	pkg.WriteJSON(w, map[string]int{"avg_heartrate": int(math.Round(avg))}, http.StatusOK)
}

func (handler *Handler) HandleAverageCalories(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.avgcalories")
	defer span.End()

	timeframe, err := ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		handleError(w, err, "")
		return
	}

	avg, err := handler.service.TimeframeStats(ctx, timeframe, AggregationAvg, MetricCalories)
	if err != nil {
		handleError(w, err, "unable to get average calories")
		return
	}

	pkg.WriteJSON(w, map[string]int{"avg_calories": int(math.Round(avg))}, http.StatusOK)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.stats")
	defer span.End()

	timeframe, err := ParseTimeframe(mux.Vars(r)["timeframe"])
	if err != nil {
		handleError(w, err, "")
		return
	}

	summary, err := handler.service.Summary(ctx, timeframe)
	if err != nil {
		handleError(w, err, "unable to get stats")
		return
	}

	pkg.WriteJSON(w, summary, http.StatusOK)
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.add")
	defer span.End()

	if !isJSON(r) {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req NewWorkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		log.Tracef("add workout, unmarshal json: %s", err)
		http.Error(w, "missing required workout data", http.StatusBadRequest)
		return
	}

	clientIP, err := pkg.ReadUserIP(r)
	if err != nil {
		log.Debugf("add workout: %s", err)
	}

	added, err := handler.service.AddWorkout(ctx, req, clientIP)
	if err != nil {
		handleError(w, err, "error adding workout")
		return
	}

	log.Debugf("new workout added: [%s]", added.Name)
	pkg.WriteJSON(w, AddWorkoutResponse{
		Message: "workout added successfully",
		Workout: added,
	}, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workouts.delete")
	defer span.End()

	var req DeleteWorkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		log.Tracef("delete workout, unmarshal json: %s", err)
		http.Error(w, "missing workout name", http.StatusBadRequest)
		return
	}

	deleted, err := handler.service.DeleteWorkout(ctx, req.Name)
	if err != nil {
		handleError(w, err, "error deleting workout")
		return
	}

	message := "workout deleted successfully"
	if !deleted {
		message = "workout not found, nothing deleted"
	}
	pkg.WriteJSON(w, DeleteWorkoutResponse{
		Message: message,
		Deleted: deleted,
	}, http.StatusOK)
}

// handleError writes every failure as a 400 with a fixed message. The
// underlying error only goes to the log.
func handleError(w http.ResponseWriter, err error, fallback string) {
	message := fallback
	switch {
	case errors.Is(err, ErrValidation):
		message = "missing or invalid workout data"
	case errors.Is(err, ErrInvalidDateFormat):
		message = "invalid date format, use today, yesterday or YYYY-MM-DD"
	case errors.Is(err, ErrDuplicateKey):
		message = "workout with that name already exists"
	case errors.Is(err, ErrUnknownTimeframe):
		message = "unknown timeframe"
	case errors.Is(err, ErrEnrichmentUnavailable):
		message = "weather or calories service unavailable, workout not added"
	case errors.Is(err, ErrStoreUnavailable):
		message = "storage unavailable, try again later"
	}
	if message == "" {
		message = "bad request"
	}

	if IsClientError(err) {
		log.Debugf("workouts request rejected: %s", err)
	} else {
		log.Errorf("workouts request failed: %s", err)
	}

	http.Error(w, message, http.StatusBadRequest)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
