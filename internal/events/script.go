package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// ScriptConfig binds a shell command to a set of event patterns.
type ScriptConfig struct {
	Name    string
	Events  []string
	Command string
	Timeout time.Duration
}

// ScriptRunner runs script hooks with at most N in flight. A hook that
// arrives while every slot is busy is dropped, not queued.
type ScriptRunner struct {
	logger *slog.Logger
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewScriptRunner creates a runner with concurrency slots, 4 when unset.
func NewScriptRunner(concurrency int, logger *slog.Logger) *ScriptRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ScriptRunner{logger: logger, slots: make(chan struct{}, concurrency)}
}

// Run starts cfg.Command under /bin/sh. The event arrives as ATHENA_*
// variables and as JSON on stdin.
func (r *ScriptRunner) Run(cfg ScriptConfig, evt Event) {
	select {
	case r.slots <- struct{}{}:
	default:
		r.logger.Warn("script hook dropped, all slots busy",
			"hook_name", cfg.Name,
			"event", string(evt.Type))
		observeHook("script", time.Now(), errHookDropped)
		return
	}

	r.wg.Add(1)
	go func() {
		defer func() {
			<-r.slots
			r.wg.Done()
		}()

		start := time.Now()
		err := r.exec(cfg, evt)
		observeHook("script", start, err)
		if err != nil {
			r.logger.Error("script hook failed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"event", string(evt.Type),
				"duration", time.Since(start).String(),
				"error", err)
			return
		}
		r.logger.Debug("script hook completed",
			"hook_name", cfg.Name,
			"event", string(evt.Type),
			"duration", time.Since(start).String())
	}()
}

func (r *ScriptRunner) exec(cfg ScriptConfig, evt Event) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)
	cmd.Env = scriptEnv(cfg, evt)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = &stderr
	// Children of the shell may hold stderr open after it is killed.
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	switch {
	case err == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("killed after %s", timeout)
	default:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
}

// Wait blocks until every started script has exited.
func (r *ScriptRunner) Wait() {
	r.wg.Wait()
}

// scriptEnv is the parent environment plus the event variables, in a stable order.
func scriptEnv(cfg ScriptConfig, evt Event) []string {
	vars := evt.ToEnvVars()
	vars["ATHENA_HOOK_NAME"] = cfg.Name

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
