package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// pictrace replays a captured port I/O trace against a software model of the
// dual 8259 pair and annotates each access with its decoded meaning. Traces
// use one access per line ("W 0x21 0xfb" or "R 0xa1 0xff"); '#' starts a
// comment. Emulator logs can usually be massaged into this format with a
// one-line awk script.

const (
	masterCmdPort  = 0x20
	masterDataPort = 0x21
	slaveCmdPort   = 0xa0
	slaveDataPort  = 0xa1

	icw1Init     = 0x10
	icw1NeedICW4 = 0x01
	icw1Single   = 0x02
	icw1Level    = 0x08

	ocw2EOI         = 0x20
	ocw2SpecificEOI = 0x60

	ocw3ReadIRR = 0x0a
	ocw3ReadISR = 0x0b
)

var (
	accessColor    = color.New(color.FgCyan)
	decodeColor    = color.New(color.FgGreen)
	violationColor = color.New(color.FgRed)
	headerColor    = color.New(color.FgBlack)

	masterLineNames = [8]string{"PIT", "keyboard", "cascade", "COM2", "COM1", "LPT2", "floppy", "LPT1"}
	slaveLineNames  = [8]string{"RTC", "ACPI", "", "", "PS/2 mouse", "FPU", "ATA primary", "ATA secondary"}
)

// chipState tracks how far along the init handshake a single 8259 is.
type chipState int

const (
	stateUninitialized chipState = iota
	stateAwaitICW2
	stateAwaitICW3
	stateAwaitICW4
	stateReady
)

type chip struct {
	name  string
	names [8]string

	state      chipState
	needICW4   bool
	singleMode bool
	levelMode  bool
	base       uint8
	readSelect uint8

	imr      uint8
	imrKnown bool
}

type access struct {
	line  int
	write bool
	port  uint16
	val   uint8
}

type tracer struct {
	master chip
	slave  chip

	showMasks  bool
	skipped    int
	violations int
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[pictrace] error: %s\n", err.Error())
	os.Exit(1)
}

func newTracer(showMasks bool) *tracer {
	return &tracer{
		master:    chip{name: "master", names: masterLineNames, readSelect: ocw3ReadIRR},
		slave:     chip{name: "slave", names: slaveLineNames, readSelect: ocw3ReadIRR},
		showMasks: showMasks,
	}
}

func parseAccess(lineNum int, line string) (*access, error) {
	if idx := strings.IndexByte(line, '#'); idx != -1 {
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	if len(fields) != 3 {
		return nil, fmt.Errorf("line %d: expected \"W|R port value\"; got %q", lineNum, line)
	}

	acc := &access{line: lineNum}
	switch strings.ToUpper(fields[0]) {
	case "W":
		acc.write = true
	case "R":
	default:
		return nil, fmt.Errorf("line %d: unknown access direction %q", lineNum, fields[0])
	}

	port, err := strconv.ParseUint(fields[1], 0, 16)
	if err != nil {
		return nil, fmt.Errorf("line %d: bad port %q", lineNum, fields[1])
	}
	acc.port = uint16(port)

	val, err := strconv.ParseUint(fields[2], 0, 8)
	if err != nil {
		return nil, fmt.Errorf("line %d: bad value %q", lineNum, fields[2])
	}
	acc.val = uint8(val)

	return acc, nil
}

// apply routes an access to the chip that owns its port, prints the decoded
// annotation and updates the model state.
func (t *tracer) apply(acc *access) {
	var (
		c       *chip
		dataReg bool
	)

	switch acc.port {
	case masterCmdPort:
		c = &t.master
	case masterDataPort:
		c, dataReg = &t.master, true
	case slaveCmdPort:
		c = &t.slave
	case slaveDataPort:
		c, dataReg = &t.slave, true
	default:
		t.skipped++
		return
	}

	dir, arrow := "R", "->"
	if acc.write {
		dir, arrow = "W", "<-"
	}
	accessColor.Printf("%5d %s 0x%02x %s 0x%02x  ", acc.line, dir, acc.port, arrow, acc.val)

	var note, violation string
	switch {
	case acc.write && dataReg:
		note, violation = c.applyDataWrite(acc.val)
	case acc.write:
		note, violation = c.applyCmdWrite(acc.val)
	case dataReg:
		note, violation = c.applyDataRead(acc.val)
	default:
		note = c.applyCmdRead()
	}

	if violation != "" {
		t.violations++
		violationColor.Printf("!! %s\n", violation)
	} else {
		decodeColor.Printf("%s\n", note)
	}

	if t.showMasks {
		fmt.Printf("      master IMR=%08b slave IMR=%08b\n", t.master.imr, t.slave.imr)
	}
}

func (c *chip) applyCmdWrite(val uint8) (note, violation string) {
	switch {
	case val&icw1Init != 0:
		c.needICW4 = val&icw1NeedICW4 != 0
		c.singleMode = val&icw1Single != 0
		c.levelMode = val&icw1Level != 0
		c.state = stateAwaitICW2
		c.imrKnown = false

		mode := "cascade"
		if c.singleMode {
			mode = "single"
		}
		trigger := "edge"
		if c.levelMode {
			trigger = "level"
		}
		note = fmt.Sprintf("%s ICW1: begin init (%s mode, %s triggered, needICW4=%t)",
			c.name, mode, trigger, c.needICW4)
	case val == ocw2EOI:
		note = fmt.Sprintf("%s OCW2: non-specific EOI", c.name)
		if c.state != stateReady {
			violation = fmt.Sprintf("%s received EOI before init completed", c.name)
		}
	case val&0xf8 == ocw2SpecificEOI:
		irqLine := val & 0x07
		note = fmt.Sprintf("%s OCW2: specific EOI for line %d (%s)", c.name, irqLine, c.lineName(irqLine))
		if c.state != stateReady {
			violation = fmt.Sprintf("%s received EOI before init completed", c.name)
		}
	case val == ocw3ReadIRR:
		c.readSelect = ocw3ReadIRR
		note = fmt.Sprintf("%s OCW3: select IRR for next command-port read", c.name)
	case val == ocw3ReadISR:
		c.readSelect = ocw3ReadISR
		note = fmt.Sprintf("%s OCW3: select ISR for next command-port read", c.name)
	default:
		violation = fmt.Sprintf("%s: unrecognized command byte 0x%02x", c.name, val)
	}

	return note, violation
}

func (c *chip) applyDataWrite(val uint8) (note, violation string) {
	switch c.state {
	case stateAwaitICW2:
		c.base = val
		note = fmt.Sprintf("%s ICW2: vector base 0x%02x", c.name, val)
		if val&0x07 != 0 {
			violation = fmt.Sprintf("%s ICW2: vector base 0x%02x is not 8-aligned", c.name, val)
		}

		if c.singleMode {
			c.state = c.postICW3State()
		} else {
			c.state = stateAwaitICW3
		}
	case stateAwaitICW3:
		if c.name == "master" {
			switch {
			case val == 0:
				violation = "master ICW3: no cascade line selected"
			case val == 1<<2:
				note = "master ICW3: slave wired to line 2 (cascade)"
			default:
				note = fmt.Sprintf("master ICW3: cascade line mask %08b", val)
			}
		} else {
			note = fmt.Sprintf("slave ICW3: cascade identity %d", val)
			if val != 2 {
				violation = fmt.Sprintf("slave ICW3: cascade identity %d; PC hardware expects 2", val)
			}
		}
		c.state = c.postICW3State()
	case stateAwaitICW4:
		parts := []string{"8080 mode"}
		if val&0x01 != 0 {
			parts[0] = "8086 mode"
		}
		if val&0x02 != 0 {
			parts = append(parts, "auto EOI")
		}
		if val&0x0c != 0 {
			parts = append(parts, "buffered")
		}
		note = fmt.Sprintf("%s ICW4: %s", c.name, strings.Join(parts, ", "))
		c.state = stateReady
	default:
		note = c.describeMaskWrite(val)
		if c.state == stateUninitialized {
			note += " (chip not initialized in this trace)"
		}
		c.imr = val
		c.imrKnown = true
	}

	return note, violation
}

func (c *chip) postICW3State() chipState {
	if c.needICW4 {
		return stateAwaitICW4
	}
	return stateReady
}

func (c *chip) describeMaskWrite(val uint8) string {
	if val == 0xff {
		return fmt.Sprintf("%s OCW1: mask all lines", c.name)
	}

	if !c.imrKnown {
		return fmt.Sprintf("%s OCW1: set IMR to %08b", c.name, val)
	}

	var changes []string
	for line := uint8(0); line < 8; line++ {
		bit := uint8(1) << line
		switch {
		case c.imr&bit != 0 && val&bit == 0:
			changes = append(changes, fmt.Sprintf("unmask line %d (%s)", line, c.lineName(line)))
		case c.imr&bit == 0 && val&bit != 0:
			changes = append(changes, fmt.Sprintf("mask line %d (%s)", line, c.lineName(line)))
		}
	}

	if len(changes) == 0 {
		return fmt.Sprintf("%s OCW1: rewrite IMR with current value %08b", c.name, val)
	}

	return fmt.Sprintf("%s OCW1: %s", c.name, strings.Join(changes, ", "))
}

func (c *chip) applyDataRead(val uint8) (note, violation string) {
	note = fmt.Sprintf("%s: read IMR", c.name)
	if c.imrKnown && val != c.imr {
		violation = fmt.Sprintf("%s: IMR readback 0x%02x does not match traced writes (0x%02x)", c.name, val, c.imr)
	}

	// Track what the hardware reported so later diffs stay meaningful.
	c.imr = val
	c.imrKnown = true

	return note, violation
}

func (c *chip) applyCmdRead() string {
	reg := "IRR"
	if c.readSelect == ocw3ReadISR {
		reg = "ISR"
	}
	return fmt.Sprintf("%s: read %s", c.name, reg)
}

func (c *chip) lineName(line uint8) string {
	if name := c.names[line&0x07]; name != "" {
		return name
	}
	return "unassigned"
}

func (t *tracer) summary() {
	headerColor.Printf("----------------------------------------------------\n")

	for _, c := range []*chip{&t.master, &t.slave} {
		if c.state != stateReady {
			fmt.Printf("%s: init sequence incomplete\n", c.name)
			continue
		}

		if !c.imrKnown {
			fmt.Printf("%s: vector base 0x%02x, no mask traffic traced\n", c.name, c.base)
			continue
		}

		fmt.Printf("%s: vector base 0x%02x, IMR=%08b\n", c.name, c.base, c.imr)
		for line := uint8(0); line < 8; line++ {
			if c.imr&(1<<line) == 0 {
				fmt.Printf("  line %d (%s) enabled -> vector 0x%02x\n", line, c.lineName(line), c.base+line)
			}
		}
	}

	// The kernel driver keeps the master cascade line in lockstep with the
	// slave mask; a trace that breaks the pairing points at a missed OCW1.
	if t.master.imrKnown && t.slave.imrKnown {
		cascadeMasked := t.master.imr&(1<<2) != 0
		switch {
		case !cascadeMasked && t.slave.imr == 0xff:
			violationColor.Printf("cascade line unmasked on master but every slave line is masked\n")
			t.violations++
		case cascadeMasked && t.slave.imr != 0xff:
			violationColor.Printf("slave lines armed but cascade line (line 2) is masked on master\n")
			t.violations++
		}
	}

	if t.skipped > 0 {
		fmt.Printf("skipped %d non-PIC accesses\n", t.skipped)
	}
	if t.violations > 0 {
		violationColor.Printf("%d protocol violations\n", t.violations)
	}
}

func run(r io.Reader, showMasks bool) (*tracer, error) {
	t := newTracer(showMasks)

	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		acc, err := parseAccess(lineNum, scanner.Text())
		if err != nil {
			return nil, err
		}
		if acc == nil {
			continue
		}

		t.apply(acc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return t, nil
}

func main() {
	showMasks := flag.Bool("masks", false, "print both IMR values after every access")
	flag.Parse()

	var in io.Reader = os.Stdin
	switch len(flag.Args()) {
	case 0:
	case 1:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			exit(err)
		}
		defer f.Close()
		in = f
	default:
		exit(errors.New("expected at most one trace file argument"))
	}

	t, err := run(in, *showMasks)
	if err != nil {
		exit(err)
	}

	t.summary()
	if t.violations > 0 {
		os.Exit(1)
	}
}
