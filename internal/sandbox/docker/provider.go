// Package docker implements the Sandbox Primitive's reference provider
// using the Docker Engine SDK. It is adapted from the teacher's
// internal/container/docker.Runtime: lifecycle, exec, and image plumbing
// carry over almost unchanged, while file I/O (readFile/writeFile/
// writeFiles/listFiles/createDirectory) and the recursive watch() the
// teacher's Runtime never exposed are built on top of Exec and, for
// watch, fsnotify against the bind-mounted workspace directory.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dockermount "github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/fsnotify/fsnotify"

	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// Provider implements sandbox.Provider using the Docker Engine API.
type Provider struct {
	client *client.Client
}

var _ sandbox.Provider = (*Provider)(nil)

// NewProvider creates a Provider from the ambient Docker environment
// (DOCKER_HOST, TLS certs, etc.), matching the teacher's NewRuntime.
func NewProvider() (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	return &Provider{client: cli}, nil
}

func (p *Provider) Name() string { return "docker" }

func (p *Provider) IsAvailable() bool {
	_, err := p.client.Ping(context.Background())
	return err == nil
}

func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.client.Ping(ctx)
	return err
}

func (p *Provider) Close() error { return p.client.Close() }

func (p *Provider) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := p.client.ImageInspect(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("docker: inspect image: %w", err)
	}
	return true, nil
}

func (p *Provider) Pull(ctx context.Context, imageName string) error {
	reader, err := p.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pull %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()

	type pullProgress struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	decoder := json.NewDecoder(reader)
	for {
		var msg pullProgress
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("docker: decode pull output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("docker: pull error: %s", msg.Error)
		}
	}
	return nil
}

// Create starts a new container and returns a Sandbox handle wrapping it.
func (p *Provider) Create(ctx context.Context, cfg sandbox.CreateConfig) (sandbox.Sandbox, error) {
	containerCfg := &dockercontainer.Config{
		Image:      cfg.Image,
		Env:        cfg.Env,
		WorkingDir: cfg.WorkingDir,
		Labels:     cfg.Labels,
	}

	var mounts []dockermount.Mount
	for _, m := range cfg.Mounts {
		mounts = append(mounts, dockermount.Mount{
			Type:     dockermount.Type(m.Type),
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hostCfg := &dockercontainer.HostConfig{
		Mounts:    mounts,
		Init:      boolPtr(true),
		Resources: buildResourceConstraints(cfg.Memory, cfg.CPUs),
	}

	resp, err := p.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("docker: create container: %w", err)
	}
	if err := p.client.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return nil, fmt.Errorf("docker: start container: %w", err)
	}

	return newSandbox(p.client, resp.ID, cfg.Mounts), nil
}

// Attach rebuilds a Sandbox handle around an already-running container.
// Mount information is not recoverable from the container ID alone, so
// Watch on a re-attached Sandbox degrades to returning an error; callers
// that need Watch after a restart must re-create rather than re-attach.
func (p *Provider) Attach(ctx context.Context, id string) (sandbox.Sandbox, error) {
	if _, err := p.client.ContainerInspect(ctx, id); err != nil {
		return nil, fmt.Errorf("docker: attach %s: %w", id, err)
	}
	return newSandbox(p.client, id, nil), nil
}

func boolPtr(b bool) *bool { return &b }

func buildResourceConstraints(memory string, cpus int) dockercontainer.Resources {
	r := dockercontainer.Resources{}
	if memory != "" {
		if bytes := parseMemoryString(memory); bytes > 0 {
			r.Memory = bytes
		}
	}
	if cpus > 0 {
		r.NanoCPUs = int64(cpus) * 1e9
	}
	return r
}

func parseMemoryString(mem string) int64 {
	if mem == "" {
		return 0
	}
	multiplier := int64(1)
	numStr := mem
	switch mem[len(mem)-1] {
	case 'K', 'k':
		multiplier = 1024
		numStr = mem[:len(mem)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		numStr = mem[:len(mem)-1]
	case 'G', 'g':
		multiplier = 1024 * 1024 * 1024
		numStr = mem[:len(mem)-1]
	}
	value, _ := strconv.ParseInt(numStr, 10, 64)
	return value * multiplier
}

// Sandbox implements sandbox.Sandbox over one Docker container.
type Sandbox struct {
	id     string
	client *client.Client
	mounts []sandbox.Mount

	mu       sync.Mutex
	watchers []*fsnotify.Watcher
}

var _ sandbox.Sandbox = (*Sandbox)(nil)

func newSandbox(cli *client.Client, id string, mounts []sandbox.Mount) *Sandbox {
	return &Sandbox{id: id, client: cli, mounts: mounts}
}

func (s *Sandbox) ID() string { return s.id }

func (s *Sandbox) BasePaths() sandbox.BasePaths {
	return sandbox.BasePaths{AppDir: "/app", WorkspaceDir: "/workspace", HomeDir: "/home/agent"}
}

// hostPath resolves a container-absolute path to its bind-mounted host
// path, used only by Watch (fsnotify needs a real filesystem path).
func (s *Sandbox) hostPath(containerPath string) (string, bool) {
	for _, m := range s.mounts {
		if m.Type != sandbox.MountBind {
			continue
		}
		if containerPath == m.Target || strings.HasPrefix(containerPath, m.Target+"/") {
			rel := strings.TrimPrefix(containerPath, m.Target)
			return filepath.Join(m.Source, rel), true
		}
	}
	return "", false
}

func (s *Sandbox) Exec(ctx context.Context, argv []string, opts sandbox.ExecOptions) (*sandbox.Exec, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", sandbox.ErrSandboxIO)
	}
	execCfg := dockercontainer.ExecOptions{
		Cmd:          argv,
		Env:          opts.Env,
		WorkingDir:   opts.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  true,
		Tty:          opts.TTY,
	}

	execResp, err := s.client.ContainerExecCreate(ctx, s.id, execCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create exec: %v", sandbox.ErrSandboxIO, err)
	}
	attachResp, err := s.client.ContainerExecAttach(ctx, execResp.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: attach exec: %v", sandbox.ErrSandboxIO, err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	go func() {
		defer func() { _ = stdoutWriter.Close() }()
		defer func() { _ = stderrWriter.Close() }()
		_, _ = stdcopy.StdCopy(stdoutWriter, stderrWriter, attachResp.Reader)
	}()

	execID := execResp.ID
	cli := s.client
	wait := func() (int, error) {
		for {
			inspect, err := cli.ContainerExecInspect(context.Background(), execID)
			if err != nil {
				return -1, fmt.Errorf("%w: inspect exec: %v", sandbox.ErrSandboxIO, err)
			}
			if !inspect.Running {
				return inspect.ExitCode, nil
			}
			select {
			case <-ctx.Done():
				return -1, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	return sandbox.NewExec(&hijackedWriteCloser{conn: attachResp}, stdoutReader, stderrReader, wait), nil
}

type hijackedWriteCloser struct{ conn types.HijackedResponse }

func (h *hijackedWriteCloser) Write(p []byte) (int, error) { return h.conn.Conn.Write(p) }
func (h *hijackedWriteCloser) Close() error                { h.conn.Close(); return nil }

// runAndCapture runs argv to completion and returns combined stdout,
// exit code, and any transport error. File-I/O helpers below are built
// on top of Exec rather than Docker's tar-based copy API, since the
// sandbox only needs plain-text reads/writes and this reuses one code
// path for both execution and file access.
func (s *Sandbox) runAndCapture(ctx context.Context, argv []string, stdin string) (string, int, error) {
	exec, err := s.Exec(ctx, argv, sandbox.ExecOptions{})
	if err != nil {
		return "", -1, err
	}
	if stdin != "" {
		if _, err := io.WriteString(exec.Stdin, stdin); err != nil {
			_ = exec.Close()
			return "", -1, fmt.Errorf("%w: write stdin: %v", sandbox.ErrSandboxIO, err)
		}
	}
	_ = exec.Stdin.Close()

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&out, exec.Stdout)
		close(done)
	}()
	code, err := exec.Wait()
	<-done
	if err != nil {
		return "", code, err
	}
	return out.String(), code, nil
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) (*string, error) {
	out, code, err := s.runAndCapture(ctx, []string{"cat", path}, "")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	return &out, nil
}

func (s *Sandbox) WriteFile(ctx context.Context, path, content string) error {
	dir := filepath.Dir(path)
	if _, _, err := s.runAndCapture(ctx, []string{"mkdir", "-p", dir}, ""); err != nil {
		return err
	}
	_, code, err := s.runAndCapture(ctx, []string{"sh", "-c", "cat > " + shellQuote(path)}, content)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%w: write %s exited %d", sandbox.ErrSandboxIO, path, code)
	}
	return nil
}

func (s *Sandbox) WriteFiles(ctx context.Context, files []sandbox.FileToWrite) (sandbox.WriteResult, error) {
	var result sandbox.WriteResult
	for _, f := range files {
		if err := s.WriteFile(ctx, f.Path, f.Content); err != nil {
			result.Failed = append(result.Failed, sandbox.WriteFailure{Path: f.Path, Error: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, f.Path)
	}
	return result, nil
}

func (s *Sandbox) CreateDirectory(ctx context.Context, path string) error {
	_, code, err := s.runAndCapture(ctx, []string{"mkdir", "-p", path}, "")
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%w: mkdir -p %s exited %d", sandbox.ErrSandboxIO, path, code)
	}
	return nil
}

func (s *Sandbox) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	argv := []string{"find", dir}
	if pattern != "" {
		argv = append(argv, "-name", pattern)
	}
	out, code, err := s.runAndCapture(ctx, argv, "")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, nil
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	var paths []string
	for _, l := range lines {
		if l != "" {
			paths = append(paths, l)
		}
	}
	return paths, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Sandbox) Poll(ctx context.Context) (*int, error) {
	inspect, err := s.client.ContainerInspect(ctx, s.id)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect: %v", sandbox.ErrSandboxIO, err)
	}
	if inspect.State == nil || inspect.State.Running {
		return nil, nil
	}
	code := inspect.State.ExitCode
	return &code, nil
}

func (s *Sandbox) Terminate(ctx context.Context) error {
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()
	for _, w := range watchers {
		_ = w.Close()
	}

	timeout := 5
	_ = s.client.ContainerStop(ctx, s.id, dockercontainer.StopOptions{Timeout: &timeout})
	return s.client.ContainerRemove(ctx, s.id, dockercontainer.RemoveOptions{Force: true})
}

type watchHandle struct {
	w      *fsnotify.Watcher
	cancel context.CancelFunc
}

func (h *watchHandle) Stop() error {
	h.cancel()
	return h.w.Close()
}

// Watch starts an fsnotify watcher against the host path bind-mounted at
// the given container path. The teacher's container.Runtime never needed
// this operation since it had no file-watching caller; fsnotify is
// sourced from the rest of the retrieval pack rather than hand-rolled.
//
// ctx only bounds the setup performed here (the initial recursive walk
// that primes fsnotify's watch list); the returned handle's watch loop
// runs on its own context, cancelled solely by Stop, since callers such
// as activate() pass a short-lived "watcher ready" timeout context that
// is done long before the watcher itself should stop.
func (s *Sandbox) Watch(ctx context.Context, path string, cb func(sandbox.WatchEvent)) (sandbox.WatchHandle, error) {
	host, ok := s.hostPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: no bind mount covers %s, cannot watch", sandbox.ErrSandboxIO, path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: fsnotify: %v", sandbox.ErrSandboxIO, err)
	}
	if err := addRecursive(w, host); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: watch %s: %v", sandbox.ErrSandboxIO, host, err)
	}

	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	go s.runWatchLoop(loopCtx, w, host, cb)
	return &watchHandle{w: w, cancel: cancel}, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func (s *Sandbox) runWatchLoop(ctx context.Context, w *fsnotify.Watcher, root string, cb func(sandbox.WatchEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleFsEvent(root, ev, cb)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("sandbox: watcher error on %s: %v", root, err)
		}
	}
}

func (s *Sandbox) handleFsEvent(root string, ev fsnotify.Event, cb func(sandbox.WatchEvent)) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		cb(sandbox.WatchEvent{Type: sandbox.WatchUnlink, Path: rel})
		return
	}

	evType := sandbox.WatchChange
	if ev.Op&fsnotify.Create != 0 {
		evType = sandbox.WatchAdd
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			s.mu.Lock()
			for _, w := range s.watchers {
				_ = w.Add(ev.Name)
			}
			s.mu.Unlock()
			return
		}
	}
	if ev.Op&fsnotify.Write == 0 && ev.Op&fsnotify.Create == 0 {
		return
	}

	time.Sleep(sandbox.WatchDebounce)
	content := readIfIncludable(ev.Name)
	cb(sandbox.WatchEvent{Type: evType, Path: rel, Content: content})
}

func readIfIncludable(path string) *string {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() > sandbox.MaxWatchedFileSize {
		return nil
	}
	if sandbox.IsBinaryExtension(strings.ToLower(filepath.Ext(path))) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
