package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/leapstack-labs/transvm/internal/loader"
	"github.com/leapstack-labs/transvm/internal/starlark"
	"github.com/leapstack-labs/transvm/pkg/core"
	"golang.org/x/sync/errgroup"
)

type modules struct {
	main      *core.Module
	overlays  []*core.Module
	libraries map[string]*core.Module
}

// loadModules loads the main module, overlays and libraries concurrently.
// The first failure cancels the remaining loads.
func (e *Engine) loadModules(ctx context.Context, req Request) (*modules, error) {
	if req.Module == "" {
		return nil, &core.LoadFault{Index: -1, Msg: "no module to launch"}
	}

	mods := &modules{
		overlays:  make([]*core.Module, len(req.Overlays)),
		libraries: make(map[string]*core.Module, len(req.Libraries)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := e.loadModule(gctx, req.Module)
		mods.main = m
		return err
	})
	for i, loc := range req.Overlays {
		g.Go(func() error {
			m, err := e.loadModule(gctx, loc)
			mods.overlays[i] = m
			return err
		})
	}
	for name, loc := range req.Libraries {
		g.Go(func() error {
			m, err := e.loadLibrary(gctx, name, loc)
			if err != nil {
				return err
			}
			mu.Lock()
			mods.libraries[name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mods, nil
}

func (e *Engine) loadModule(ctx context.Context, loc string) (*core.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("loading module", "location", loc)
	if e.fs != nil {
		return loader.LoadFS(e.fs, loc)
	}
	return loader.LoadFile(loc)
}

// loadLibrary loads a bytecode library, or a script library for .star
// locators.
func (e *Engine) loadLibrary(ctx context.Context, name, loc string) (*core.Module, error) {
	if !starlark.IsScript(loc) {
		return e.loadModule(ctx, loc)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.logger.Debug("loading script library", "library", name, "location", loc)
	src, err := e.readFile(loc)
	if err != nil {
		return nil, &starlark.LoadError{File: loc, Message: fmt.Sprintf("failed to read file: %v", err)}
	}
	return starlark.Load(name, loc, src, e.logger)
}

func (e *Engine) readFile(path string) ([]byte, error) {
	if e.fs != nil {
		return fs.ReadFile(e.fs, path)
	}
	return os.ReadFile(path) //nolint:gosec // G304: library paths come from the launch config
}
