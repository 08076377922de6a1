// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/metrics"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
	"mcp-diet-opt/internal/storage"
)

const (
	serverName    = "diet-opt"
	serverVersion = "1.0.0"
)

type Config struct {
	Host      string
	Port      int
	DBPath    string
	Optimizer optimizer.Options
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type DietServer struct {
	server     *server.Server
	httpServer *http.Server
	storage    *storage.SQLiteStorage
	optimizer  *optimizer.Optimizer
	metrics    *metrics.Metrics
	logger     *zap.Logger
	config     *Config
	tools      map[string]toolHandler

	// mu serializes tool calls: the pantry and the run history are single-writer.
	mu   sync.Mutex
	data *Data
}

func NewDietServer(cfg *Config, data *Data, baseLogger *zap.Logger) (*DietServer, error) {
	logger := baseLogger.Named("server")

	stor, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if data.Nutrients.Len() == 0 {
		if err := stor.LoadNutrients(data.Nutrients); err != nil {
			stor.Close()
			return nil, fmt.Errorf("failed to load stored nutrients: %w", err)
		}
	} else if err := stor.SaveNutrients(data.Nutrients); err != nil {
		stor.Close()
		return nil, fmt.Errorf("failed to persist nutrients: %w", err)
	}
	if data.Pantry.Len() == 0 {
		if err := stor.LoadFoods(data.Pantry, true); err != nil {
			stor.Close()
			return nil, fmt.Errorf("failed to load stored foods: %w", err)
		}
	} else if err := stor.SaveFoods(data.Pantry); err != nil {
		stor.Close()
		return nil, fmt.Errorf("failed to persist foods: %w", err)
	}

	m := metrics.New()
	dietServer := &DietServer{
		storage:   stor,
		optimizer: optimizer.New(baseLogger, cfg.Optimizer, m),
		metrics:   m,
		logger:    logger,
		config:    cfg,
		data:      data,
	}

	// Create MCP server (without transport, we'll handle HTTP manually)
	mcpServer, err := server.NewServer(
		nil,
		server.WithServerInfo(protocol.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}),
	)
	if err != nil {
		stor.Close()
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	dietServer.server = mcpServer

	dietServer.registerTools()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dietServer.httpServer = &http.Server{
		Addr:    addr,
		Handler: dietServer.Handler(),
	}

	logger.Info("Server ready",
		zap.String("addr", addr),
		zap.Int("nutrients", data.Nutrients.Len()),
		zap.Int("foods", data.Pantry.Len()),
		zap.Int("tools", len(dietServer.tools)))
	return dietServer, nil
}

// Handler routes tool calls on / and the Prometheus endpoint on /metrics.
func (s *DietServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/", s.handleHTTP)
	return mux
}

func (s *DietServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	result, err := handler(r.Context(), &request)
	s.mu.Unlock()

	if err != nil {
		status := statusFor(err)
		s.logger.Warn("Tool call failed",
			zap.String("tool", request.Name),
			zap.Int("status", status),
			zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// statusFor maps caller-correctable errors to 4xx.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrFoodNotFound),
		errors.Is(err, optimizer.ErrUnknownFood),
		errors.Is(err, optimizer.ErrRunNotFound),
		errors.Is(err, optimizer.ErrNoRuns):
		return http.StatusNotFound
	case errors.Is(err, errInvalidParams),
		errors.Is(err, catalog.ErrInvalidFood),
		errors.Is(err, constraints.ErrConflictingKinds),
		errors.Is(err, constraints.ErrInvalidConstraint),
		errors.Is(err, constraints.ErrMalformedSource),
		errors.Is(err, optimizer.ErrInvalidPrice),
		errors.Is(err, optimizer.ErrInvalidInput),
		errors.Is(err, models.ErrUnknownRestriction),
		errors.Is(err, models.ErrUnknownUnit):
		return http.StatusBadRequest
	case errors.Is(err, optimizer.ErrSolver):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *DietServer) Start(ctx context.Context) error {
	s.logger.Info("Starting diet optimization server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *DietServer) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.storage != nil {
		if cerr := s.storage.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *DietServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
