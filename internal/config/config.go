// Package config parses the engine's line-based config.txt grammar into
// a populated Layer Graph and Remap Registry plus the scalar FSM/runtime
// tunables, following load_config_line's single-pass parser-with-parsee
// shape: rule directives accumulate into one in-flight Remap until the
// next remap_key= directive or end-of-file closes it, and and_layer=/
// and_not_layer= apply to the Layer most recently named by define_layer=.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dualrole/remapd/internal/keydef"
	"github.com/dualrole/remapd/internal/layer"
	"github.com/dualrole/remapd/internal/remap"
)

// ParseError reports a config.txt violation with its 1-based line number.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config error (line %d): %s", e.Line, e.Msg)
}

// EngineConfig is everything a config.txt load produces: the scalar
// tunables plus the populated Layer Graph and Remap Registry.
type EngineConfig struct {
	Debug               bool
	HoldDelayMS          int64
	TapTimeoutMS         int64
	DoublepressTimeoutMS int64
	RehookTimeoutMS      int64
	UnlockTimeoutMS      int64
	Scancode             bool
	Priority             bool

	Layers   *layer.Graph
	Registry *remap.Registry
}

const (
	maxRemaps = 255

	layerPrefix       = "layer"
	toggleLayerPrefix = "toggle_layer"
	setLayerPrefix    = "set_layer"
	resetLayerPrefix  = "reset_layer"
)

// Load reads and parses the config file at path.
func Load(path string) (*EngineConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

// parser holds the in-flight parsee state across lines, mirroring the
// source's g_remap_parsee/g_layer_parsee globals.
type parser struct {
	cfg *EngineConfig

	remapParsee *remap.Remap
	layerParsee *layer.Layer

	pendingRemaps []*remap.Remap
}

func parse(r io.Reader) (*EngineConfig, error) {
	cfg := &EngineConfig{
		RehookTimeoutMS: 1000,
		UnlockTimeoutMS: 60000,
		Priority:        true,
		Layers:          layer.NewGraph(),
		Registry:        remap.NewRegistry(),
	}
	p := &parser{cfg: cfg}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := p.line(scanner.Text(), lineNum); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if err := p.finish(lineNum + 1); err != nil {
		return nil, err
	}
	return cfg, nil
}

func remapIsValid(r *remap.Remap) bool {
	if r == nil || r.From.Name == "" {
		return false
	}
	return len(r.ToWhenAlone) > 0 || len(r.ToWithOther) > 0 ||
		r.PressLayer != nil || len(r.TapLockActions) > 0 || len(r.DoubleTapLockActions) > 0
}

// finish closes out any in-flight remap and performs the end-of-file
// bucket registration pass.
func (p *parser) finish(lineNum int) error {
	if p.remapParsee != nil {
		if remapIsValid(p.remapParsee) {
			p.pendingRemaps = append(p.pendingRemaps, p.remapParsee)
		} else if p.remapParsee.From.Name != "" {
			return &ParseError{Line: lineNum, Msg: "incomplete remapping: each remapping must have a 'remap_key' and at least one output binding or layer action"}
		}
		p.remapParsee = nil
	}
	for _, r := range p.pendingRemaps {
		if err := p.cfg.Registry.Register(r); err != nil {
			return &ParseError{Line: lineNum, Msg: fmt.Sprintf("exceeded the maximum limit of %d remappings", maxRemaps)}
		}
	}
	return nil
}

func (p *parser) line(raw string, lineNum int) error {
	line := strings.TrimRight(raw, "\r\n")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	if ok, err := p.scalarDirective(line, lineNum); ok {
		return err
	}

	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("couldn't understand %q", line)}
	}
	directive, value := line[:eq], line[eq+1:]

	keyDef, hasKeyDef := keydef.Lookup(value)
	looksLikeLayer := strings.HasPrefix(value, layerPrefix) ||
		strings.HasPrefix(value, toggleLayerPrefix) ||
		strings.HasPrefix(value, setLayerPrefix) ||
		strings.HasPrefix(value, resetLayerPrefix)
	if !hasKeyDef && !looksLikeLayer {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", value)}
	}

	switch directive {
	case "remap_key":
		return p.remapKey(keyDef, hasKeyDef, value, lineNum)
	case "layer":
		return p.layerGate(value, lineNum)
	case "when_alone":
		return p.appendChord(&p.remapParsee.ToWhenAlone, keyDef, hasKeyDef, value, lineNum)
	case "with_other":
		return p.appendChord(&p.remapParsee.ToWithOther, keyDef, hasKeyDef, value, lineNum)
	case "when_press":
		return p.pressLayer(value, lineNum)
	case "when_doublepress":
		return p.doublepress(keyDef, hasKeyDef, value, lineNum)
	case "when_tap_lock":
		return p.tapLock(&p.remapParsee.ToWhenTapLock, &p.remapParsee.TapLockActions, keyDef, hasKeyDef, value, lineNum)
	case "when_double_tap_lock":
		return p.tapLock(&p.remapParsee.ToWhenDoubleTapLock, &p.remapParsee.DoubleTapLockActions, keyDef, hasKeyDef, value, lineNum)
	case "define_layer":
		return p.defineLayer(value, lineNum)
	case "and_layer":
		return p.andLayer(value, lineNum, false)
	case "and_not_layer":
		return p.andLayer(value, lineNum, true)
	default:
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid setting %q", line)}
	}
}

// scalarDirective handles the key=int and key=bool global settings; ok is
// false when line does not match one of these directives at all.
func (p *parser) scalarDirective(line string, lineNum int) (ok bool, err error) {
	directive, value, found := strings.Cut(line, "=")
	if !found {
		return false, nil
	}
	switch directive {
	case "debug":
		return true, p.parseBool(value, &p.cfg.Debug, lineNum)
	case "scancode":
		return true, p.parseBool(value, &p.cfg.Scancode, lineNum)
	case "priority":
		return true, p.parseBool(value, &p.cfg.Priority, lineNum)
	case "hold_delay":
		return true, p.parseInt(value, &p.cfg.HoldDelayMS, lineNum)
	case "tap_timeout":
		return true, p.parseInt(value, &p.cfg.TapTimeoutMS, lineNum)
	case "doublepress_timeout":
		return true, p.parseInt(value, &p.cfg.DoublepressTimeoutMS, lineNum)
	case "rehook_timeout":
		return true, p.parseInt(value, &p.cfg.RehookTimeoutMS, lineNum)
	case "unlock_timeout":
		return true, p.parseInt(value, &p.cfg.UnlockTimeoutMS, lineNum)
	}
	return false, nil
}

func (p *parser) parseInt(value string, dst *int64, lineNum int) error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid integer %q", value)}
	}
	*dst = n
	return nil
}

func (p *parser) parseBool(value string, dst *bool, lineNum int) error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || (n != 0 && n != 1) {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid boolean %q (must be 0 or 1)", value)}
	}
	*dst = n == 1
	return nil
}

// beginRemap lazily starts a new parsee, matching new_remap(NULL, ...).
func (p *parser) beginRemap() {
	if p.remapParsee == nil {
		p.remapParsee = &remap.Remap{}
	}
}

func (p *parser) remapKey(kd keydef.KeyDef, hasKeyDef bool, name string, lineNum int) error {
	if !hasKeyDef {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	if p.remapParsee != nil && p.remapParsee.From.Name != "" {
		if !remapIsValid(p.remapParsee) {
			return &ParseError{Line: lineNum, Msg: "incomplete remapping: each remapping must have a 'remap_key' and at least one output binding or layer action"}
		}
		p.pendingRemaps = append(p.pendingRemaps, p.remapParsee)
		p.remapParsee = nil
	}
	p.beginRemap()
	p.remapParsee.From = kd
	return nil
}

func (p *parser) layerGate(name string, lineNum int) error {
	if !strings.HasPrefix(name, layerPrefix) {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	p.beginRemap()
	p.remapParsee.Layer = p.cfg.Layers.Create(name)
	return nil
}

func (p *parser) appendChord(dst *[]keydef.KeyDef, kd keydef.KeyDef, hasKeyDef bool, name string, lineNum int) error {
	if !hasKeyDef {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	p.beginRemap()
	*dst = append(*dst, kd)
	return nil
}

func (p *parser) pressLayer(name string, lineNum int) error {
	if !strings.HasPrefix(name, layerPrefix) {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	p.beginRemap()
	p.remapParsee.PressLayer = p.cfg.Layers.Create(name)
	return nil
}

func (p *parser) doublepress(kd keydef.KeyDef, hasKeyDef bool, name string, lineNum int) error {
	p.beginRemap()
	if strings.HasPrefix(name, layerPrefix) {
		p.remapParsee.DoublepressLayer = p.cfg.Layers.Create(name)
		return nil
	}
	if !hasKeyDef {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	p.remapParsee.ToWhenDoublepress = append(p.remapParsee.ToWhenDoublepress, kd)
	return nil
}

func (p *parser) tapLock(chordDst *[]keydef.KeyDef, actionsDst *[]remap.LayerAction, kd keydef.KeyDef, hasKeyDef bool, name string, lineNum int) error {
	p.beginRemap()
	switch {
	case strings.HasPrefix(name, toggleLayerPrefix):
		l := p.cfg.Layers.Create(strings.TrimPrefix(name, "toggle_"))
		*actionsDst = append(*actionsDst, remap.LayerAction{Op: remap.LockToggle, Target: l})
		return nil
	case strings.HasPrefix(name, setLayerPrefix):
		l := p.cfg.Layers.Create(strings.TrimPrefix(name, "set_"))
		*actionsDst = append(*actionsDst, remap.LayerAction{Op: remap.LockSet, Target: l})
		return nil
	case strings.HasPrefix(name, resetLayerPrefix):
		l := p.cfg.Layers.Create(strings.TrimPrefix(name, "reset_"))
		*actionsDst = append(*actionsDst, remap.LayerAction{Op: remap.LockReset, Target: l})
		return nil
	}
	if !hasKeyDef {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	*chordDst = append(*chordDst, kd)
	return nil
}

func (p *parser) defineLayer(name string, lineNum int) error {
	if !strings.HasPrefix(name, layerPrefix) {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	p.layerParsee = p.cfg.Layers.Create(name)
	return nil
}

func (p *parser) andLayer(name string, lineNum int, not bool) error {
	if !strings.HasPrefix(name, layerPrefix) {
		return &ParseError{Line: lineNum, Msg: fmt.Sprintf("invalid key name %q", name)}
	}
	if p.layerParsee == nil {
		return &ParseError{Line: lineNum, Msg: "incomplete layer definition: each layer definition must start with a 'define_layer'"}
	}
	master := p.cfg.Layers.Create(name)
	var err error
	if not {
		err = p.cfg.Layers.AddNotMaster(p.layerParsee, master)
	} else {
		err = p.cfg.Layers.AddMaster(p.layerParsee, master)
	}
	if err != nil {
		return &ParseError{Line: lineNum, Msg: err.Error()}
	}
	return nil
}
