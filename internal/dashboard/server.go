package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/rs/cors"

	"cropinv/internal/diag"
	"cropinv/internal/inventory"
	"cropinv/internal/rate"
)

// Config: 仪表盘服务参数。CacheTTL <= 0 时不缓存视图；RateLimitRPM <= 0 时不限流。
type Config struct {
	Addr           string
	CacheTTL       time.Duration
	AllowedOrigins []string
	RateLimitRPM   int
	RateBurst      int
}

// Server: 基于只读 Dataset 的 HTTP API。
type Server struct {
	ds      *Dataset
	cfg     Config
	logger  *diag.Logger
	views   *cache.Cache
	gate    *rate.Gate
	handler http.Handler
}

// NewServer 构建路由；logger 可为 nil。
func NewServer(ds *Dataset, cfg Config, logger *diag.Logger) *Server {
	if logger == nil {
		logger = diag.NewNopLogger()
	}
	s := &Server{ds: ds, cfg: cfg, logger: logger}
	if cfg.CacheTTL > 0 {
		s.views = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/overview", s.overview).Methods(http.MethodGet)
	api.HandleFunc("/options", s.options).Methods(http.MethodGet)
	api.HandleFunc("/view", s.view).Methods(http.MethodGet)
	api.HandleFunc("/countries", s.countries).Methods(http.MethodGet)
	api.HandleFunc("/inventory/{country}/{crop}", s.entry).Methods(http.MethodGet)
	api.HandleFunc("/charts/indicators.png", s.indicatorChart).Methods(http.MethodGet)
	r.HandleFunc("/debug/metrics", s.metrics).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         86400,
	})
	s.gate = rate.NewGate(rate.Limits{RPM: cfg.RateLimitRPM, Burst: cfg.RateBurst}, nil)
	s.handler = requestID(logging(logger)(recovery(logger)(limit(s.gate, logger)(c.Handler(r)))))
	return s
}

// Handler 返回完整的 http.Handler（含中间件）。
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe 监听 cfg.Addr，直到 ctx 取消后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	if s.gate.Enabled() {
		go s.sweep(ctx)
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.InfoKV("dashboard", "listening", map[string]string{"addr": s.cfg.Addr})
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrapf(err, "dashboard: listen %s", s.cfg.Addr)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "dashboard: shutdown")
	}
	s.logger.InfoKV("dashboard", "stopped", nil)
	return nil
}

// sweep 定期清理空闲客户端的令牌桶。
func (s *Server) sweep(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.gate.Sweep(); n > 0 {
				s.logger.DebugStart("dashboard", "rate sweep", "", map[string]string{"removed": strconv.Itoa(n)})
			}
		}
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": len(s.ds.Records)})
}

func (s *Server) overview(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ds.Overview())
}

func (s *Server) options(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ds.Options())
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := f.Key()
	if s.views != nil {
		if v, ok := s.views.Get(key); ok {
			diag.IncOp("dashboard", "cache", "hit")
			writeJSON(w, http.StatusOK, v)
			return
		}
		diag.IncOp("dashboard", "cache", "miss")
	}
	v := s.ds.View(f)
	if s.views != nil {
		s.views.Set(key, v, cache.DefaultExpiration)
	}
	writeJSON(w, http.StatusOK, v)
}

type countryRow struct {
	CountryCode  string  `json:"country_code"`
	CountryName  string  `json:"country_name"`
	Crops        int     `json:"crops"`
	YearMin      *int    `json:"year_min"`
	YearMax      *int    `json:"year_max"`
	RegionCount  int     `json:"region_count"`
	Completeness float64 `json:"data_completeness"`
}

func (s *Server) countries(w http.ResponseWriter, _ *http.Request) {
	rows := make([]countryRow, 0, len(s.ds.Countries))
	for _, c := range s.ds.Countries {
		rows = append(rows, countryRow{
			CountryCode:  c.CountryCode,
			CountryName:  c.CountryName,
			Crops:        c.Crops,
			YearMin:      c.YearMin,
			YearMax:      c.YearMax,
			RegionCount:  c.RegionCount,
			Completeness: c.Completeness,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

type entryDoc struct {
	CountryCode      string   `json:"country_code"`
	Crop             string   `json:"crop"`
	Years            []int    `json:"years"`
	Seasonality      []string `json:"seasonality"`
	Regions          []string `json:"regions"`
	DataSources      []string `json:"data_sources"`
	Indicators       []string `json:"indicators"`
	AreaPlanted      bool     `json:"area_planted"`
	AreaHarvested    bool     `json:"area_harvested"`
	QuantityProduced bool     `json:"quantity_produced"`
	Production       bool     `json:"production"`
}

func (s *Server) entry(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	k := inventory.Key{Country: vars["country"], Crop: vars["crop"]}
	a, ok := s.ds.Inventory.Lookup(k)
	if !ok {
		writeError(w, http.StatusNotFound, "no inventory entry for "+k.Country+"/"+k.Crop)
		return
	}
	writeJSON(w, http.StatusOK, entryDoc{
		CountryCode:      k.Country,
		Crop:             k.Crop,
		Years:            a.Years.Sorted(),
		Seasonality:      a.Seasonality.Sorted(),
		Regions:          a.Regions.Sorted(),
		DataSources:      a.DataSources.Sorted(),
		Indicators:       a.Indicators.Sorted(),
		AreaPlanted:      a.Flags.AreaPlanted,
		AreaHarvested:    a.Flags.AreaHarvested,
		QuantityProduced: a.Flags.QuantityProduced,
		Production:       a.Flags.Production,
	})
}

func (s *Server) indicatorChart(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := RenderIndicatorPNG(&buf, IndicatorBars(f.Apply(s.ds.Records))); err != nil {
		s.logger.Error("dashboard", string(diag.Classify(err)), err.Error(), nil)
		writeError(w, http.StatusInternalServerError, "chart rendering failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, diag.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
