// Package sandbox defines the Sandbox Primitive: a provider-agnostic
// handle over a remote container used to run one agent process. It is
// grounded on the teacher's internal/container.Runtime abstraction,
// narrowed to the single-container, single-tenant-per-handle shape an
// Agent Session actually needs, and extended with a recursive watch()
// operation the teacher's Runtime never had to provide.
package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// BasePaths are the fixed directories inside every sandbox container,
// independent of Architecture.
type BasePaths struct {
	AppDir       string
	WorkspaceDir string
	HomeDir      string
}

// Exec is a spawned process inside the sandbox. Stdout/Stderr are byte
// streams suitable for line-delimited reading via internal/stream.
type Exec struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	wait func() (int, error)
	done chan struct{}
}

// NewExec constructs an Exec around the given pipes and wait function.
func NewExec(stdin io.WriteCloser, stdout, stderr io.ReadCloser, wait func() (int, error)) *Exec {
	return &Exec{Stdin: stdin, Stdout: stdout, Stderr: stderr, wait: wait, done: make(chan struct{})}
}

// Wait blocks for process exit and returns its exit code.
func (e *Exec) Wait() (int, error) {
	code, err := e.wait()
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	return code, err
}

// Done is closed once Wait has observed process exit.
func (e *Exec) Done() <-chan struct{} { return e.done }

// Close releases the Exec's I/O streams without waiting for exit.
func (e *Exec) Close() error {
	if e.Stdin != nil {
		_ = e.Stdin.Close()
	}
	if e.Stdout != nil {
		_ = e.Stdout.Close()
	}
	if e.Stderr != nil {
		_ = e.Stderr.Close()
	}
	return nil
}

// WriteResult reports the outcome of a bulk writeFiles call. Partial
// success is expected and is not itself an error.
type WriteResult struct {
	Succeeded []string
	Failed    []WriteFailure
}

// WriteFailure names one file that failed to write in a bulk writeFiles
// call, and why.
type WriteFailure struct {
	Path  string
	Error string
}

// FileToWrite is one entry of a bulk writeFiles call.
type FileToWrite struct {
	Path    string
	Content string
}

// WatchEventType discriminates a Watch callback invocation.
type WatchEventType string

const (
	WatchAdd    WatchEventType = "add"
	WatchChange WatchEventType = "change"
	WatchUnlink WatchEventType = "unlink"
)

// WatchEvent is delivered to a Watch callback. Path is relative to the
// watched root. Content is populated for add/change when the file is
// <=1 MiB and not a recognized binary extension; it is read after a
// short debounce so the callback doesn't observe a partial write.
type WatchEvent struct {
	Type    WatchEventType
	Path    string
	Content *string
}

// WatchHandle lets a caller stop a single Watch subscription.
type WatchHandle interface {
	Stop() error
}

// ErrSandboxIO wraps any provider-level failure from an operation below.
// Callers should use errors.Is(err, ErrSandboxIO) to classify faults
// without caring which provider produced them.
var ErrSandboxIO = errors.New("sandbox: io error")

// Sandbox is the uniform handle an Agent Session drives. Every method may
// return an error wrapping ErrSandboxIO; callers treat that as a
// transient, provider-level fault rather than a logic error.
type Sandbox interface {
	ID() string
	BasePaths() BasePaths

	Exec(ctx context.Context, argv []string, opts ExecOptions) (*Exec, error)
	ReadFile(ctx context.Context, path string) (content *string, err error)
	WriteFile(ctx context.Context, path, content string) error
	WriteFiles(ctx context.Context, files []FileToWrite) (WriteResult, error)
	CreateDirectory(ctx context.Context, path string) error
	ListFiles(ctx context.Context, dir, pattern string) ([]string, error)

	// Watch starts a recursive watcher rooted at path. It returns once
	// the watcher is confirmed running, though cb may already have been
	// invoked by then. The returned handle's Stop is also called
	// implicitly by Terminate.
	Watch(ctx context.Context, path string, cb func(WatchEvent)) (WatchHandle, error)

	// Poll returns the exit code of the sandbox's main process, or nil
	// if it is still running.
	Poll(ctx context.Context) (*int, error)

	// Terminate is best-effort and idempotent.
	Terminate(ctx context.Context) error
}

// ExecOptions configures a single Exec call.
type ExecOptions struct {
	Env        []string
	WorkingDir string
	TTY        bool
}

// Provider constructs and looks up Sandbox handles backed by one
// container runtime (Docker, Apple Container, …).
type Provider interface {
	Name() string
	IsAvailable() bool
	Ping(ctx context.Context) error
	Close() error

	// Create starts a new sandbox from the given image and returns its
	// handle. The sandbox is running and ready for Exec once Create
	// returns.
	Create(ctx context.Context, cfg CreateConfig) (Sandbox, error)

	// Attach rebuilds a Sandbox handle around an already-running
	// container, used after a process restart to resume driving a
	// session whose sandbox survived.
	Attach(ctx context.Context, id string) (Sandbox, error)

	// ImageExists and Pull back the image resolver's EnsureImageExists.
	ImageExists(ctx context.Context, image string) (bool, error)
	Pull(ctx context.Context, image string) error
}

// CreateConfig describes a sandbox to create.
type CreateConfig struct {
	Name       string
	Image      string
	Env        []string
	WorkingDir string
	Mounts     []Mount
	Labels     map[string]string
	Memory     string
	CPUs       int
}

// MountType is the kind of filesystem mount attached to a sandbox.
type MountType string

const (
	MountBind   MountType = "bind"
	MountVolume MountType = "volume"
	MountTmpfs  MountType = "tmpfs"
)

// Mount is a single bind/volume/tmpfs mount.
type Mount struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

// DefaultHealthPollInterval is how often the health loop polls a
// sandbox's exit code.
const DefaultHealthPollInterval = 30 * time.Second

// WatchDebounce is how long Watch waits after a write before reading
// file content, to avoid observing a partial write.
const WatchDebounce = 150 * time.Millisecond

// MaxWatchedFileSize is the content-inclusion ceiling for Watch events.
const MaxWatchedFileSize = 1 << 20 // 1 MiB

// binaryExtensions lists extensions Watch treats as binary regardless of
// size, so content is never read for them.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".bin": {}, ".exe": {},
	".so": {}, ".dylib": {}, ".dll": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".mp3": {}, ".mp4": {}, ".mov": {}, ".wasm": {}, ".sqlite": {}, ".db": {},
}

// IsBinaryExtension reports whether path's extension marks it as binary
// for Watch's content-inclusion rule.
func IsBinaryExtension(ext string) bool {
	_, ok := binaryExtensions[ext]
	return ok
}
