// Package pipeline runs one extraction pass end to end: provision the
// emulator, wait for the operator to log in, capture the memory window,
// scan it, validate the token and persist the artifacts. Everything is
// sequential in one goroutine; the only suspension point is the operator
// checkpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tarsier-dev/tarsier/internal/adb"
	"github.com/tarsier-dev/tarsier/internal/api"
	"github.com/tarsier-dev/tarsier/internal/config"
	"github.com/tarsier-dev/tarsier/internal/emulator"
	"github.com/tarsier-dev/tarsier/internal/log"
	"github.com/tarsier-dev/tarsier/internal/memory"
	"github.com/tarsier-dev/tarsier/internal/output"
	"github.com/tarsier-dev/tarsier/internal/profile"
	"github.com/tarsier-dev/tarsier/internal/scan"
)

// Validator is the slice of the API client the pipeline needs.
type Validator interface {
	BrokerToken(ctx context.Context, token string) (*api.BrokerCredentials, error)
	MemberInfo(ctx context.Context, token string) (*api.Member, error)
	Devices(ctx context.Context, token string) ([]api.Device, error)
	Homes(ctx context.Context, token string) ([]api.Device, error)
}

// Hooks let the CLI observe and drive the run.
type Hooks struct {
	// OnState is called at every transition with an operator-facing
	// description of what comes next.
	OnState func(s State, detail string)
	// Checkpoint blocks until the operator confirms the login. Must
	// return pause-style errors on interrupt.
	Checkpoint func(ctx context.Context, message string) error
}

// Pipeline wires one run. All collaborators are injected so tests can
// run the machine against fakes.
type Pipeline struct {
	Profile *profile.Profile
	Config  *config.Config

	ADB       *adb.ADB
	Emulator  *emulator.Emulator
	Reader    memory.Reader
	Validator Validator

	APKDir    string
	OutputDir string

	// SkipProvision assumes a booted, rooted device with the app
	// already running.
	SkipProvision bool

	Hooks Hooks

	state State
}

// StateNow returns the current state, for the CLI status line.
func (p *Pipeline) StateNow() State { return p.state }

func (p *Pipeline) enter(s State, detail string) {
	p.state = s
	log.L.Step(string(s), detail)
	if p.Hooks.OnState != nil {
		p.Hooks.OnState(s, detail)
	}
}

// Run executes the whole pass and returns the produced artifacts.
// On validation failure the artifacts are still returned (without broker
// credentials) alongside the error, so the operator keeps what memory
// extraction recovered.
func (p *Pipeline) Run(ctx context.Context) (*output.Artifacts, error) {
	p.enter(StateProvisioning, "preparing emulator and app")
	if err := p.provision(ctx); err != nil {
		return nil, err
	}

	p.enter(StateWaitingForLogin, "waiting for operator login")
	if p.Hooks.Checkpoint != nil {
		msg := fmt.Sprintf("Log in to %s in the emulator, then confirm.", p.Profile.Package)
		if err := p.Hooks.Checkpoint(ctx, msg); err != nil {
			return nil, err
		}
	}

	p.enter(StateExtracting, "capturing and scanning process memory")
	rec, err := p.extract(ctx)
	if err != nil {
		return nil, err
	}

	arts := &output.Artifacts{
		Profile: p.Profile,
		Record:  rec,
		APIBase: p.Config.ResolveAPIBase(p.Profile.APIBase),
		Locale:  p.Config.Locale,
		When:    time.Now(),
	}

	p.enter(StateValidating, "validating token against cloud API")
	valErr := p.validate(ctx, arts)

	if err := arts.WriteEnv(p.OutputDir); err != nil {
		return arts, fmt.Errorf("write env file: %w", err)
	}
	if err := arts.WriteReport(p.OutputDir); err != nil {
		return arts, fmt.Errorf("write report: %w", err)
	}

	p.enter(StateDone, "artifacts written")
	return arts, valErr
}

func (p *Pipeline) provision(ctx context.Context) error {
	if p.SkipProvision {
		if !p.ADB.DeviceReady(ctx) {
			return &emulator.Error{Step: "device", Err: errors.New("no online emulator device (and --skip-provision was given)")}
		}
		return nil
	}

	if err := p.Emulator.CreateAVD(ctx); err != nil {
		return err
	}
	if err := p.Emulator.Start(ctx, p.ADB, p.OutputDir); err != nil {
		return err
	}
	if err := p.Emulator.WaitBoot(ctx, p.ADB); err != nil {
		return err
	}

	rooted, err := p.ADB.Root(ctx)
	if err != nil {
		return &emulator.Error{Step: "root", Err: err}
	}
	if !rooted {
		// Some images report a limited root; the dd read may still
		// work, so warn rather than abort.
		log.L.Warn("adbd is not running as root; memory read may fail")
	}

	if err := emulator.InstallApp(ctx, p.ADB, p.Profile.Package, p.APKDir, p.Profile.APKHints); err != nil {
		return err
	}
	if err := p.ADB.Launch(ctx, p.Profile.Package); err != nil {
		return &emulator.Error{Step: "launch", Err: err}
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context) (*scan.Record, error) {
	// Root may have been lost across the login wait; re-assert it.
	if !p.SkipProvision {
		if _, err := p.ADB.Root(ctx); err != nil {
			log.L.Warn("re-enabling root failed", log.Args([]string{err.Error()}))
		}
	}

	pid, err := p.ADB.Pidof(ctx, p.Profile.Package)
	if err != nil {
		return nil, err
	}
	log.L.Info("target process", log.Pid(pid))

	win, err := p.Reader.Read(ctx, pid, p.Profile.WindowOffset, p.Profile.WindowSize)
	if err != nil {
		p.logMaps(ctx, pid)
		return nil, err
	}

	rec := scan.Extract(win.Data, p.Profile.Fields)
	for name, v := range rec.Values {
		log.L.FieldFound(name, len(v))
	}

	if rec.Get(profile.PrimaryField) == "" {
		return nil, scan.ErrTokenNotFound
	}
	return rec, nil
}

// logMaps pulls the target's memory map after a failed window read. The
// first readable regions tell the operator whether root could see the
// process at all or the window geometry is simply wrong for this app
// version.
func (p *Pipeline) logMaps(ctx context.Context, pid int) {
	out, err := p.ADB.Shell(ctx, "cat", fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return
	}
	regions, err := memory.ParseMaps(strings.NewReader(out))
	if err != nil || len(regions) == 0 {
		return
	}
	readable := 0
	for _, r := range regions {
		if r.Readable() {
			readable++
		}
	}
	log.L.Info("target memory map",
		zap.Int("regions", len(regions)),
		zap.Int("readable", readable),
		zap.String("first", log.Hex(regions[0].Start)),
		zap.String("last", log.Hex(regions[len(regions)-1].End)))
}

// validate performs the single validation call plus the profile's probes.
// Probe failures only cost the backfilled fields; the returned error
// reflects the primary validation alone.
func (p *Pipeline) validate(ctx context.Context, arts *output.Artifacts) error {
	token := arts.Record.Get(profile.PrimaryField)

	broker, err := p.Validator.BrokerToken(ctx, token)
	if err != nil {
		return err
	}
	arts.Broker = broker

	if p.Profile.ProbeMemberInfo {
		if m, err := p.Validator.MemberInfo(ctx, token); err == nil {
			backfill := scan.NewRecord()
			if m.Nickname != "" {
				backfill.Values["user_name"] = m.Nickname
			}
			if m.Email != "" {
				backfill.Values["user_email"] = m.Email
			}
			if uid := m.UID.String(); uid != "" && uid != "0" {
				backfill.Values["user_id"] = uid
			}
			arts.Record.Merge(backfill)
		}
	}

	serialField := p.serialFieldName()
	if arts.Record.Get(serialField) == "" && (p.Profile.ProbeDevices || p.Profile.ProbeHomes) {
		var devices []api.Device
		var probeErr error
		if p.Profile.ProbeDevices {
			devices, probeErr = p.Validator.Devices(ctx, token)
		} else {
			devices, probeErr = p.Validator.Homes(ctx, token)
		}
		if probeErr == nil {
			for _, d := range devices {
				if sn := d.Serial(); sn != "" {
					backfill := scan.NewRecord()
					backfill.Values[serialField] = sn
					if model := d.Model(); model != "" {
						backfill.Values["drone_model"] = model
					}
					arts.Record.Merge(backfill)
					break
				}
			}
		}
	}
	return nil
}

// serialFieldName returns the profile's serial field: the two built-in
// tables name it differently.
func (p *Pipeline) serialFieldName() string {
	for _, f := range p.Profile.Fields {
		if f.Name == "drone_sn" {
			return "drone_sn"
		}
	}
	return "device_sn"
}
