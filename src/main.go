package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron"

	"github.com/fracabu/logistic-data-dash/src/config"
	"github.com/fracabu/logistic-data-dash/src/datapush"
	"github.com/fracabu/logistic-data-dash/src/datasource/email"
	"github.com/fracabu/logistic-data-dash/src/datasource/file"
	"github.com/fracabu/logistic-data-dash/src/processor"
	"github.com/fracabu/logistic-data-dash/src/storage"
	"github.com/fracabu/logistic-data-dash/src/utils"
)

const detailTableRows = 20

type app struct {
	cfg     *config.Config
	dcfg    *config.DataConfig
	logger  *storage.Logger
	loader  *processor.Loader
	session *processor.Session
	pusher  *datapush.Pusher

	mu      sync.RWMutex
	dataset *processor.Dataset
	source  string
}

func main() {
	jsonFolder := "./config"
	jsonFile := "config.json"
	dataJsonFile := "dataconfig.json"
	cfg, dcfg, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Close()

	a := &app{
		cfg:     cfg,
		dcfg:    dcfg,
		logger:  logger,
		loader:  processor.NewLoader(dcfg),
		session: processor.NewSession(),
		pusher:  datapush.NewPusher(cfg.PushWebhookURL),
	}

	source, err := file.ResolveDataFile(cfg.DataDir, cfg.DefaultCSV)
	if err != nil {
		log.Fatal("no shipment data available: ", err)
	}
	if err := a.reloadFrom(source); err != nil {
		log.Fatal("initial load failed: ", err)
	}

	go a.watchDataDir()
	a.startJobs()

	http.HandleFunc("/api/dashboard", a.handleDashboard)
	http.HandleFunc("/api/train", a.handleTrain)
	http.HandleFunc("/api/predict", a.handlePredict)
	http.HandleFunc("/api/export", a.handleExport)
	http.HandleFunc("/logs", a.handleLogs)

	go waitForShutdown(logger)

	logger.Info("listening on " + cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, nil); err != nil {
		log.Fatal(err)
	}
}

// reloadFrom reads a shipment file, normalizes it and swaps it in as the
// current dataset.
func (a *app) reloadFrom(path string) error {
	raw, err := file.ReadShipments(path, a.cfg.SheetName)
	if err != nil {
		return err
	}

	a.loader.Invalidate(path)
	ds, err := a.loader.Load(path, raw)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.dataset = ds
	a.source = path
	a.mu.Unlock()

	a.logger.Info(fmt.Sprintf("loaded %s: %d shipments", path, ds.DF.Nrow()))
	return nil
}

func (a *app) currentDataset() (*processor.Dataset, string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dataset, a.source
}

// watchDataDir reloads whenever a shipment file lands in the data
// directory, from an upload or from the mailbox handler.
func (a *app) watchDataDir() {
	monitor, err := file.NewFileMonitor(a.cfg.DataDir)
	if err != nil {
		a.logger.Error("file monitor unavailable: " + err.Error())
		return
	}
	defer monitor.Close()

	err = monitor.Watch(func(path string) {
		if err := a.reloadFrom(path); err != nil {
			a.logger.Error(fmt.Sprintf("reloading %s: %v", path, err))
		}
	})
	if err != nil {
		a.logger.Error("file monitoring stopped: " + err.Error())
	}
}

// startJobs schedules the recurring work: mailbox polling, the summary
// push, log rotation.
func (a *app) startJobs() {
	c := cron.New()

	if a.cfg.Email.Enabled {
		client := email.NewClient(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password)
		handler := email.NewAttachmentHandler(a.cfg.Email.TargetSubject, a.cfg.DataDir)

		spec := fmt.Sprintf("@every %s", time.Duration(a.cfg.Email.CheckInterval))
		c.AddFunc(spec, func() {
			if err := email.CheckAndProcessEmails(client, handler, a.cfg.Email.TargetSubject, a.logger); err != nil {
				a.logger.Error("mailbox check failed: " + err.Error())
			}
		})
	}

	if a.cfg.PushWebhookURL != "" && a.cfg.PushInterval > 0 {
		spec := fmt.Sprintf("@every %s", time.Duration(a.cfg.PushInterval))
		c.AddFunc(spec, a.pushSummary)
	}

	c.AddFunc("@hourly", func() {
		a.logger.CheckRotate(a.cfg)
	})

	c.Start()
}

// pushSummary posts the unfiltered KPI snapshot to the webhook.
func (a *app) pushSummary() {
	ds, _ := a.currentDataset()
	if ds == nil {
		return
	}

	view := processor.ApplyFilter(ds, processor.DefaultFilter(ds))
	kpis := processor.KPIs(view)
	materials := processor.TopMaterials(processor.MaterialStats(view), 5)

	if err := a.pusher.PushSummary(kpis, materials); err != nil {
		a.logger.Error("summary push failed: " + err.Error())
	} else {
		a.logger.Info("summary pushed")
	}
}

// filterFromQuery builds a FilterSpec from the request, falling back to the
// dataset defaults for absent parameters. Dates use YYYY-MM-DD; list
// parameters are comma separated.
func filterFromQuery(r *http.Request, ds *processor.Dataset) (processor.FilterSpec, error) {
	spec := processor.DefaultFilter(ds)
	q := r.URL.Query()

	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return spec, fmt.Errorf("bad date_from %q", v)
		}
		spec.DateFrom = t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return spec, fmt.Errorf("bad date_to %q", v)
		}
		spec.DateTo = t
	}
	if v := q.Get("vehicle_types"); v != "" {
		spec.VehicleTypes = splitList(v)
	}
	if v := q.Get("materials"); v != "" {
		spec.Materials = splitList(v)
	}

	return spec, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type dashboardResponse struct {
	Source    string `json:"source"`
	Shipments int    `json:"shipments"`

	KPIs       processor.KPIBundle       `json:"kpis"`
	Vehicles   []processor.VehicleStat   `json:"vehicle_stats"`
	Materials  []processor.MaterialStat  `json:"material_stats"`
	DailyTrend  []processor.TrendPoint  `json:"daily_trend"`
	MetricTrend []processor.MetricPoint `json:"metric_trend,omitempty"`
	Network    processor.NetworkSummary  `json:"network"`
	Detail     [][]string                `json:"detail"`

	VehicleTypes []string `json:"vehicle_types"`
	MaterialSet  []string `json:"materials"`
	DateFrom     string   `json:"date_from"`
	DateTo       string   `json:"date_to"`
}

func (a *app) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ds, source := a.currentDataset()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no dataset loaded"))
		return
	}

	spec, err := filterFromQuery(r, ds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view := processor.ApplyFilter(ds, spec)

	resp := dashboardResponse{
		Source:       filepath.Base(source),
		Shipments:    view.Rows(),
		KPIs:         processor.KPIs(view),
		Vehicles:     processor.VehicleStats(view),
		Materials:    processor.MaterialStats(view),
		DailyTrend:   processor.DailyTrend(view),
		Network:      processor.SummarizeNetwork(view),
		Detail:       processor.DetailTable(view, detailTableRows).Records(),
		VehicleTypes: ds.VehicleTypes,
		MaterialSet:  ds.Materials,
	}
	if ds.HasDates {
		resp.DateFrom = ds.DateFrom.Format("2006-01-02")
		resp.DateTo = ds.DateTo.Format("2006-01-02")
	}

	// optional per-metric daily mean series, e.g. ?metric=on_time_ratio
	if metric := r.URL.Query().Get("metric"); metric != "" {
		points, err := processor.MetricTrend(view, metric)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp.MetricTrend = points
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *app) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	ds, _ := a.currentDataset()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no dataset loaded"))
		return
	}

	spec, err := filterFromQuery(r, ds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	target := r.URL.Query().Get("target")
	if target == "" {
		target = processor.ColDistanceKM
	}

	started := time.Now()
	result, err := a.session.TrainOn(processor.ApplyFilter(ds, spec), target)
	if err != nil {
		var trainErr *processor.TrainingError
		if errors.As(err, &trainErr) {
			writeError(w, http.StatusUnprocessableEntity, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	a.logger.Info(fmt.Sprintf("trained %s model in %v (test R2 %.3f)",
		target, time.Since(started), result.TestR2))
	writeJSON(w, http.StatusOK, result)
}

func (a *app) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	var in processor.PredictionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad prediction input: %w", err))
		return
	}

	value, err := a.session.Predict(in)
	if err != nil {
		if errors.Is(err, processor.ErrModelNotTrained) {
			writeError(w, http.StatusConflict, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prediction": value,
		"target":     a.session.Model().Target,
	})
}

// handleExport writes the current filtered view to an xlsx report and
// returns its path.
func (a *app) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	ds, _ := a.currentDataset()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no dataset loaded"))
		return
	}

	spec, err := filterFromQuery(r, ds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := os.MkdirAll(a.cfg.ReportDir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	view := processor.ApplyFilter(ds, spec)
	if view.Rows() == 0 {
		writeError(w, http.StatusUnprocessableEntity, &processor.EmptyResultError{Op: "export"})
		return
	}
	path := filepath.Join(a.cfg.ReportDir,
		fmt.Sprintf("shipments-%s.xlsx", time.Now().Format("20060102150405")))

	if err := utils.SaveToExcel(view.DF, path); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.logger.Info("exported report " + path)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path": path,
		"rows": view.Rows(),
	})
}

// handleLogs streams log entries as they are written, one line per entry.
func (a *app) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Transfer-Encoding", "chunked")

	logChan := a.logger.Subscribe()

	for {
		select {
		case msg := <-logChan:
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func waitForShutdown(logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received signal: " + sig.String() + ", shutting down...")
	logger.Close()
	os.Exit(0)
}
