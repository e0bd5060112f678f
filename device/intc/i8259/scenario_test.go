package i8259

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v2"

	"gopherpc/kernel"
	"gopherpc/kernel/irq"
)

type scenarioStep struct {
	Op     string     `yaml:"op"`
	Vector irq.Vector `yaml:"vector"`
}

type scenario struct {
	Name         string         `yaml:"name"`
	Steps        []scenarioStep `yaml:"steps"`
	Master       uint8          `yaml:"master"`
	Slave        uint8          `yaml:"slave"`
	CascadeArmed bool           `yaml:"cascade_armed"`
	Writes       int            `yaml:"writes"`
}

func TestMaskScenarios(t *testing.T) {
	defer restorePortFns()
	defer stubInterruptGating()()

	data, err := ioutil.ReadFile(filepath.Join("testdata", "scenarios.yaml"))
	if err != nil {
		t.Fatalf("failed to load scenario fixtures: %v", err)
	}

	var scenarios []scenario
	if err = yaml.Unmarshal(data, &scenarios); err != nil {
		t.Fatalf("failed to parse scenario fixtures: %v", err)
	}

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			sim := new(picSim)
			sim.install()
			d := newInitializedDriver(sim)

			for stepIndex, step := range sc.Steps {
				var stepErr *kernel.Error
				switch step.Op {
				case "enable":
					stepErr = d.SetVectorEnabled(step.Vector, true)
				case "disable":
					stepErr = d.SetVectorEnabled(step.Vector, false)
				case "ack":
					d.Acknowledge(step.Vector)
				case "maskall":
					d.MaskAll()
				default:
					t.Fatalf("[step %d] unknown op %q", stepIndex, step.Op)
				}

				if stepErr != nil {
					t.Fatalf("[step %d] unexpected error: %v", stepIndex, stepErr)
				}
			}

			if d.master.shadow != sc.Master || d.slave.shadow != sc.Slave {
				t.Errorf("expected final masks master: 0x%x, slave: 0x%x; got master: 0x%x, slave: 0x%x",
					sc.Master, sc.Slave, d.master.shadow, d.slave.shadow)
			}
			if got := d.VectorEnabled(d.master.base + cascadeLine); got != sc.CascadeArmed {
				t.Errorf("expected cascade armed to be %t; got %t", sc.CascadeArmed, got)
			}
			if len(sim.writes) != sc.Writes {
				t.Errorf("expected %d hardware writes; got %d: %v", sc.Writes, len(sim.writes), sim.writes)
			}
		})
	}
}
