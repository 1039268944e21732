package transcoder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"liveclass/internal/config"

	"github.com/pkg/errors"
)

// ProcessState is the lifecycle of one rendition's ffmpeg process.
type ProcessState int32

const (
	StateIdle ProcessState = iota
	StateRunning
	StateStopping
	StateExited
)

// gracefulStopTimeout is how long Stop waits for ffmpeg to exit after
// SIGTERM before escalating to SIGKILL.
const gracefulStopTimeout = 5 * time.Second

// hardwareProbeWindow is how long Start waits after spawning a
// hardware-accelerated encoder before treating it as having launched
// successfully. A VAAPI device that fails to initialize exits within
// this window (spec.md section 4.B); that is the signal to retry the
// same rendition on the software encoder rather than failing the stream.
const hardwareProbeWindow = 2 * time.Second

// stderrTailLines bounds how much of a process's stderr is kept in memory
// for surfacing alongside an unexpected-exit failure.
const stderrTailLines = 40

// FailureFunc is called once per rendition process that exits without
// Stop having been requested. The Supervisor never restarts it; per
// spec.md section 4.B, recovery decisions belong to the caller
// (internal/orchestrator), not to the Supervisor itself.
type FailureFunc func(streamKey, codecName, renditionName string, err error)

// renditionProcess tracks one ffmpeg child process and its state.
type renditionProcess struct {
	rendition config.Rendition
	cmd       *exec.Cmd
	state     atomic.Int32
	stderr    *tailBuffer
	done      chan struct{}

	// exited carries cmd.Wait()'s result exactly once. A single waiter
	// goroutine started in startOne populates it; spawnRendition's
	// hardware probe and watch both read from it, but never both for the
	// same process.
	exited chan error
}

func (p *renditionProcess) State() ProcessState {
	return ProcessState(p.state.Load())
}

// Supervisor drives every rendition process for one stream key's codec
// ladder. It owns no knowledge of what the stream key means; it is handed
// an input reader by the orchestrator and fans it out to each rendition's
// ffmpeg stdin.
type Supervisor struct {
	cfg       *config.Config
	streamKey string
	codec     config.Codec
	log       *slog.Logger
	onFailure FailureFunc

	mu        sync.Mutex
	processes []*renditionProcess
	stopping  bool
}

// NewSupervisor returns a Supervisor for one stream key's codec. Call
// Start once to spawn every rendition process.
func NewSupervisor(cfg *config.Config, streamKey string, codec config.Codec, log *slog.Logger, onFailure FailureFunc) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		streamKey: streamKey,
		codec:     codec,
		log:       log,
		onFailure: onFailure,
	}
}

// Start writes the codec's master playlist, spawns one ffmpeg process per
// rendition, and fans input out to all of them. It returns once every
// process has been launched and, when hardware acceleration is enabled,
// has survived its init probe (see spawnRendition); ffmpeg failing after
// that point is reported through onFailure, not through Start's return
// value, because by the time exec.Start succeeds the caller has already
// moved on to streaming bytes into input.
func (s *Supervisor) Start(input io.Reader) error {
	if err := WriteMasterPlaylist(s.cfg, s.streamKey, s.codec); err != nil {
		return err
	}

	writers := make([]io.Writer, 0, len(s.codec.Renditions))
	pipeReaders := make([]*os.File, 0, len(s.codec.Renditions))

	for _, r := range s.codec.Renditions {
		pr, pw, err := os.Pipe()
		if err != nil {
			return errors.Wrapf(err, "create stdin pipe for rendition %s", r.Name)
		}
		writers = append(writers, pw)
		pipeReaders = append(pipeReaders, pr)
	}

	fanout := io.MultiWriter(writers...)
	go func() {
		io.Copy(fanout, input)
		for _, w := range writers {
			w.(*os.File).Close()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.codec.Renditions {
		outputDir := renditionOutputDir(s.cfg, s.streamKey, s.codec.Name, r.Name)
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return errors.Wrapf(err, "create output dir for rendition %s", r.Name)
		}

		proc, err := s.spawnRendition(r, pipeReaders[i], outputDir)
		if err != nil {
			return errors.Wrapf(err, "start ffmpeg for rendition %s", r.Name)
		}
		s.processes = append(s.processes, proc)
	}

	s.logf(slog.LevelInfo, "transcoder started", "stream_key", s.streamKey, "codec", s.codec.Name, "renditions", len(s.processes))
	return nil
}

// startOne spawns a single rendition process with a given encoder choice
// and starts the one goroutine that ever calls cmd.Wait() on it.
func (s *Supervisor) startOne(r config.Rendition, stdin *os.File, outputDir string, useHardware bool) (*renditionProcess, error) {
	proc := &renditionProcess{
		rendition: r,
		stderr:    newTailBuffer(stderrTailLines),
		done:      make(chan struct{}),
		exited:    make(chan error, 1),
	}

	cmd := exec.Command("ffmpeg", ffmpegArgsForEncoder(s.cfg, s.streamKey, s.codec.Name, r, outputDir, useHardware)...)
	cmd.Stdin = stdin
	cmd.Stdout = nil
	cmd.Stderr = proc.stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	proc.cmd = cmd
	proc.state.Store(int32(StateRunning))
	go func() { proc.exited <- proc.cmd.Wait() }()
	return proc, nil
}

// spawnRendition starts one rendition process, applying spec.md section
// 4.B's hardware-fallback rule: when hardware acceleration is configured,
// it gives the VAAPI encoder up to hardwareProbeWindow to prove it didn't
// die on device init before committing to it. A fast exit is treated as
// an init failure and retried once on the software encoder; a process
// still running after the window (or any process started in software
// mode) is handed to watch for the rest of its life.
func (s *Supervisor) spawnRendition(r config.Rendition, stdin *os.File, outputDir string) (*renditionProcess, error) {
	useHardware := s.cfg.HardwareAcceleration
	proc, err := s.startOne(r, stdin, outputDir, useHardware)
	if err != nil {
		return nil, err
	}
	if !useHardware {
		go s.watch(proc)
		return proc, nil
	}

	select {
	case err := <-proc.exited:
		proc.state.Store(int32(StateExited))
		close(proc.done)
		s.logf(slog.LevelWarn, "hardware encoder exited during init probe, falling back to software",
			"stream_key", s.streamKey, "codec", s.codec.Name, "rendition", r.Name,
			"err", err, "stderr", proc.stderr.String())
		fallback, ferr := s.startOne(r, stdin, outputDir, false)
		if ferr != nil {
			return nil, ferr
		}
		go s.watch(fallback)
		return fallback, nil

	case <-time.After(hardwareProbeWindow):
		go s.watch(proc)
		return proc, nil
	}
}

// watch waits for one rendition process to exit and reports unexpected
// exits through onFailure. It never restarts the process itself.
func (s *Supervisor) watch(proc *renditionProcess) {
	defer close(proc.done)
	err := <-proc.exited

	s.mu.Lock()
	wasStopping := s.stopping || proc.State() == StateStopping
	proc.state.Store(int32(StateExited))
	s.mu.Unlock()

	if wasStopping {
		return
	}

	if err == nil {
		err = errors.New("ffmpeg exited with status 0 before being told to stop")
	}
	failure := errors.Wrapf(err, "ffmpeg exited unexpectedly, stderr tail: %s", proc.stderr.String())
	s.logf(slog.LevelError, "transcoder process exited unexpectedly",
		"stream_key", s.streamKey, "codec", s.codec.Name, "rendition", proc.rendition.Name, "err", err)

	if s.onFailure != nil {
		s.onFailure(s.streamKey, s.codec.Name, proc.rendition.Name, failure)
	}
}

// Stop signals every running rendition process to exit gracefully,
// escalating to SIGKILL after gracefulStopTimeout. Stop is idempotent:
// calling it twice, or calling it after every process has already
// exited, is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	procs := append([]*renditionProcess(nil), s.processes...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, proc := range procs {
		if proc.State() != StateRunning {
			continue
		}
		proc.state.Store(int32(StateStopping))
		wg.Add(1)
		go func(p *renditionProcess) {
			defer wg.Done()
			s.stopOne(p)
		}(proc)
	}
	wg.Wait()

	s.logf(slog.LevelInfo, "transcoder stopped", "stream_key", s.streamKey, "codec", s.codec.Name)
}

func (s *Supervisor) stopOne(proc *renditionProcess) {
	if proc.cmd.Process != nil {
		proc.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-proc.done:
		return
	case <-time.After(gracefulStopTimeout):
	}

	if proc.cmd.Process != nil {
		proc.cmd.Process.Kill()
	}
	<-proc.done
}

// States returns a snapshot of every rendition process's current state,
// keyed by rendition name, for status reporting.
func (s *Supervisor) States() map[string]ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ProcessState, len(s.processes))
	for _, p := range s.processes {
		out[p.rendition.Name] = p.State()
	}
	return out
}

func (s *Supervisor) logf(level slog.Level, msg string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(context.Background(), level, msg, args...)
}

// tailBuffer is an io.Writer that keeps only the most recent N lines
// written to it, for bounding how much ffmpeg stderr a failed process
// carries into a log line.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines [][]byte
	buf   bytes.Buffer
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	for {
		line, err := t.buf.ReadBytes('\n')
		if err != nil {
			// No newline yet: put the unterminated remainder back for the
			// next Write to complete.
			t.buf.Write(line)
			break
		}
		t.lines = append(t.lines, bytes.TrimRight(line, "\n"))
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.Join(t.lines, []byte("\n")))
}
