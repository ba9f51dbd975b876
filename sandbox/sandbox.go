package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	wazerosys "github.com/tetratelabs/wazero/sys"

	"github.com/scriptbox-dev/scriptbox/bridge"
	"github.com/scriptbox-dev/scriptbox/dispatch"
	"github.com/scriptbox-dev/scriptbox/engine"
	"github.com/scriptbox-dev/scriptbox/protocol"
	"github.com/scriptbox-dev/scriptbox/ratelimit"
	"github.com/scriptbox-dev/scriptbox/session"
)

// Error codes for host-produced failures. Script-thrown errors keep whatever
// code the script or a dispatch operation attached.
const (
	CodeTimeout      = "TIMEOUT"
	CodeSandboxStart = "SANDBOX_START"
	CodeScriptError  = "SCRIPT_ERROR"
	CodeCanceled     = "CANCELED"
)

// Result is the terminal outcome of one invocation, produced exactly once.
type Result struct {
	OK       bool
	Value    any
	Error    *protocol.ErrorDetail
	Output   string
	Progress []string
	Duration time.Duration
}

// Capabilities bundles what an invocation may reach: the dispatch table of
// host operations and the connection's session store. Nil fields default to
// empty, so a script with no capabilities can still run.
type Capabilities struct {
	Table   *dispatch.Table
	Session *session.Store
}

// moduleRunner starts one guest instance and blocks until it exits. It is a
// seam for tests; production uses the wazero-backed runner.
type moduleRunner interface {
	Run(ctx context.Context, wrapped string, stdin io.Reader, stdout, stderr io.Writer) error
}

// Host manages the WASM runtime and compiled-module caching, and runs one
// isolated guest per Execute call.
type Host struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	engine   engine.Runtime
	runner   moduleRunner
	mu       sync.RWMutex
	closed   bool
}

// New creates a Host for the given guest runtime.
func New(rt engine.Runtime, opts ...HostOption) (*Host, error) {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	wasmRuntime := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, wasmRuntime); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	h := &Host{
		runtime:  wasmRuntime,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		engine:   rt,
	}
	h.runner = &wasmRunner{host: h}

	if cfg.precompile {
		if _, err := h.getCompiled(ctx); err != nil {
			h.Close()
			return nil, fmt.Errorf("precompile %s: %w", rt.Name(), err)
		}
	}

	return h, nil
}

// Execute runs one script against the given capabilities and settles exactly
// once. It never returns a Go error; every failure path lands in the Result.
func (h *Host) Execute(ctx context.Context, script string, caps Capabilities, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	table := caps.Table
	if table == nil {
		table = dispatch.NewTable()
	}
	store := caps.Session
	if store == nil {
		store = session.NewStore()
	}

	var progressMu sync.Mutex
	progressLog := []string{}
	addProgress := func(text string) {
		progressMu.Lock()
		progressLog = append(progressLog, text)
		progressMu.Unlock()
		if cfg.onProgress != nil {
			cfg.onProgress(text)
		}
	}

	stdout := newScriptOutput()
	finish := func(res Result) Result {
		progressMu.Lock()
		res.Progress = append([]string{}, progressLog...)
		progressMu.Unlock()
		res.Output = stdout.String()
		res.Duration = time.Since(start)
		return res
	}

	seed, err := json.Marshal(store.Snapshot())
	if err != nil {
		return finish(Result{Error: &protocol.ErrorDetail{
			Message: "failed to start sandbox: session snapshot not serializable: " + err.Error(),
			Code:    CodeSandboxStart,
		}})
	}

	limiter := cfg.limiter
	if limiter == nil {
		// Fresh per invocation; concurrent invocations sharing one upstream
		// account need WithLimiter to share a quota.
		limiter = ratelimit.New(cfg.rateLimit, cfg.rateWindow)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	settle := newSettlement()

	stdinReader, stdinWriter := io.Pipe()
	br := bridge.New(bridge.Config{
		Table:   table,
		Limiter: limiter,
		Store:   store,
		Respond: func(resp protocol.Response) {
			data, err := protocol.EncodeResponse(resp)
			if err != nil {
				data = []byte(`{"id":` + jsonQuote(resp.ID) + `,"error":{"message":"internal: failed to encode response"}}` + "\n")
			}
			// After teardown the pipe is closed; late responses go nowhere.
			stdinWriter.Write(data)
		},
		OnProgress: addProgress,
		OnSession:  cfg.onSession,
	})

	// Done and fatal are settlement signals; everything else belongs to the
	// bridge.
	handler := newFrameHandler(func(msg protocol.Message) {
		switch msg.Type {
		case protocol.KindDone:
			settle.resolve(Result{OK: true, Value: msg.Value})
		case protocol.KindFatal:
			detail := msg.Error
			if detail == nil {
				detail = &protocol.ErrorDetail{Message: "script failed"}
			}
			settle.resolve(Result{Error: detail})
		default:
			br.Handle(runCtx, msg)
		}
	})

	wrapped := h.engine.WrapScript(script, seed)

	go func() {
		runErr := h.runner.Run(runCtx, wrapped, stdinReader, stdout, handler)
		if runCtx.Err() == context.DeadlineExceeded {
			settle.resolve(timeoutResult(cfg.timeout))
			return
		}
		settle.resolve(exitResult(runErr, handler.Stderr()))
	}()

	go func() {
		<-runCtx.Done()
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			settle.resolve(timeoutResult(cfg.timeout))
		} else {
			settle.resolve(Result{Error: &protocol.ErrorDetail{
				Message: "execution canceled",
				Code:    CodeCanceled,
			}})
		}
	}()

	res := settle.wait()

	// Teardown hangs off the single settlement point: canceling the context
	// closes the guest (CloseOnContextDone), closing the pipes unblocks any
	// straggling bridge responses.
	cancel()
	stdinReader.Close()
	stdinWriter.Close()

	return finish(res)
}

// Close releases the WASM runtime and cache.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	ctx := context.Background()

	var errs []error
	if err := h.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if h.cache != nil {
		if err := h.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// getCompiled returns the cached compiled guest module, compiling on first
// use.
func (h *Host) getCompiled(ctx context.Context) (wazero.CompiledModule, error) {
	name := h.engine.Name()

	h.mu.RLock()
	if compiled, ok := h.compiled[name]; ok {
		h.mu.RUnlock()
		return compiled, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if compiled, ok := h.compiled[name]; ok {
		return compiled, nil
	}

	compiled, err := h.runtime.CompileModule(ctx, h.engine.Module())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	h.compiled[name] = compiled
	return compiled, nil
}

// scriptOutput collects guest stdout. Settlement on a done or fatal frame
// can happen while the guest is still flushing, so reads and writes overlap
// and the buffer needs its own lock.
type scriptOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newScriptOutput() *scriptOutput {
	return &scriptOutput{}
}

func (o *scriptOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *scriptOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// wasmRunner runs the guest under wazero.
type wasmRunner struct {
	host *Host
}

func (r *wasmRunner) Run(ctx context.Context, wrapped string, stdin io.Reader, stdout, stderr io.Writer) error {
	compiled, err := r.host.getCompiled(ctx)
	if err != nil {
		return err
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithStdin(stdin).
		WithArgs(r.host.engine.Args(wrapped)...).
		WithName("")

	_, err = r.host.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	return err
}

func timeoutResult(timeout time.Duration) Result {
	return Result{Error: &protocol.ErrorDetail{
		Message: fmt.Sprintf("execution timed out after %v", timeout),
		Code:    CodeTimeout,
		Fix:     "break the script into smaller steps and run them as separate invocations",
	}}
}

// exitResult classifies a guest that exited before posting done or fatal: a
// nonzero exit (syntax error, top-level throw) is a script-level fault,
// anything else failed to start.
func exitResult(err error, stderr string) Result {
	var exitErr *wazerosys.ExitError
	switch {
	case err == nil:
		return Result{Error: &protocol.ErrorDetail{
			Message: "script exited without completing",
			Code:    CodeScriptError,
		}}
	case errors.As(err, &exitErr):
		if exitErr.ExitCode() == 0 {
			return Result{Error: &protocol.ErrorDetail{
				Message: "script exited without completing",
				Code:    CodeScriptError,
			}}
		}
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return Result{Error: &protocol.ErrorDetail{
			Message: "script error: " + msg,
			Code:    CodeScriptError,
		}}
	default:
		return Result{Error: &protocol.ErrorDetail{
			Message: "failed to start sandbox: " + err.Error(),
			Code:    CodeSandboxStart,
		}}
	}
}

func jsonQuote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "scriptbox")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "scriptbox")
	}
	return filepath.Join(os.TempDir(), "scriptbox-cache")
}
