package receiver

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
)

// termGrace is how long a receiver gets to exit on SIGTERM before it
// is killed.
const termGrace = 3 * time.Second

type proc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor owns the lifecycle of the external wireless-display
// receiver processes, one per configured source. The streaming core
// only depends on Start, Stop and Running; everything the receivers
// render is observed through the window registry and the screen.
type Supervisor struct {
	cfg     config.ReceiverConfig
	sources []config.Source
	metrics *metrics.Metrics

	mu    sync.Mutex
	procs map[string]*proc
}

// NewSupervisor creates a supervisor for the given sources. metrics may
// be nil.
func NewSupervisor(cfg config.ReceiverConfig, sources []config.Source, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		sources: sources,
		metrics: m,
		procs:   make(map[string]*proc, len(sources)),
	}
}

// receiverArgs builds the command line for one receiver instance:
// distinct advertised name, distinct port base, random MAC so multiple
// instances can coexist, vsync off for latency, and the window kept
// open when a stream stops.
func receiverArgs(src config.Source, extra []string) []string {
	args := []string{
		"-n", src.Name,
		"-p", strconv.Itoa(src.PortBase),
		"-m",
		"-vsync", "no",
		"-nc",
	}
	return append(args, extra...)
}

// Start launches one receiver instance per source. Each instance gets
// a distinct advertised name, a distinct port base, and a random MAC
// so multiple instances can coexist on one host.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithComponent("receiver")

	for _, src := range s.sources {
		if _, exists := s.procs[src.ID]; exists {
			return fmt.Errorf("receiver %s already started", src.ID)
		}

		args := receiverArgs(src, s.cfg.ExtraArgs)
		cmd := exec.Command(s.cfg.Command, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("receiver %s: stdout pipe: %w", src.ID, err)
		}
		cmd.Stderr = cmd.Stdout

		log.Info().
			Str("source", src.ID).
			Str("command", s.cfg.Command).
			Strs("args", args).
			Msg("Launching receiver")

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("receiver %s: start %s: %w", src.ID, s.cfg.Command, err)
		}

		p := &proc{cmd: cmd, done: make(chan struct{})}
		s.procs[src.ID] = p

		go s.tailOutput(src.ID, stdout)
		go s.waitExit(src.ID, p)
	}

	return nil
}

// tailOutput forwards receiver output into the log with a per-instance
// label, so a broken receiver is debuggable from the service log.
func (s *Supervisor) tailOutput(sourceID string, r io.Reader) {
	log := logger.WithComponent("receiver")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().
			Str("source", sourceID).
			Msg(scanner.Text())
	}
}

func (s *Supervisor) waitExit(sourceID string, p *proc) {
	err := p.cmd.Wait()
	close(p.done)
	if s.metrics != nil {
		s.metrics.IncReceiverExits()
	}
	logger.WithComponent("receiver").Warn().
		Err(err).
		Str("source", sourceID).
		Msg("Receiver process exited")
}

// Running reports whether the source's receiver process is alive.
func (s *Supervisor) Running(sourceID string) bool {
	s.mu.Lock()
	p, ok := s.procs[sourceID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Snapshot returns the liveness flag per source.
func (s *Supervisor) Snapshot() map[string]bool {
	out := make(map[string]bool, len(s.sources))
	for _, src := range s.sources {
		out[src.ID] = s.Running(src.ID)
	}
	return out
}

// Stop terminates all receiver processes: SIGTERM first, SIGKILL for
// any that outlive the grace period.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	procs := make(map[string]*proc, len(s.procs))
	for id, p := range s.procs {
		procs[id] = p
	}
	s.mu.Unlock()

	log := logger.WithComponent("receiver")

	for id, p := range procs {
		select {
		case <-p.done:
			continue
		default:
		}

		log.Info().Str("source", id).Msg("Terminating receiver")
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			continue
		}

		select {
		case <-p.done:
		case <-time.After(termGrace):
			log.Warn().Str("source", id).Msg("Receiver ignored SIGTERM, killing")
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	}
}
