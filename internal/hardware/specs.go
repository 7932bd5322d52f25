package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

const bytesPerGB = 1024 * 1024 * 1024

var errNoGPU = errors.New("no gpu detected")

// Specs is a snapshot of the host resources that drive model recommendation.
// The GB fields are rounded to two decimals for display.
type Specs struct {
	PhysicalCores     int
	RAMTotalGB        float64
	RAMAvailableGB    float64
	RAMAvailableBytes uint64
	GPU               string
	VRAMGB            float64
}

func (s Specs) HasGPU() bool {
	return s.GPU != ""
}

type memoryInfo struct {
	Total     uint64
	Available uint64
}

type gpuInfo struct {
	Name     string
	VRAMByte uint64
}

// Detector reads host specs. The zero value probes the real machine.
type Detector struct {
	Logger *zap.Logger

	cores  func(ctx context.Context) (int, error)
	memory func(ctx context.Context) (memoryInfo, error)
	gpu    func(ctx context.Context) (gpuInfo, error)
}

func (d *Detector) Detect(ctx context.Context) (Specs, error) {
	cores, err := d.coresFn()(ctx)
	if err != nil {
		return Specs{}, fmt.Errorf("count cpu cores: %w", err)
	}

	memInfo, err := d.memoryFn()(ctx)
	if err != nil {
		return Specs{}, fmt.Errorf("read memory info: %w", err)
	}

	specs := Specs{
		PhysicalCores:     cores,
		RAMTotalGB:        toGB(memInfo.Total),
		RAMAvailableGB:    toGB(memInfo.Available),
		RAMAvailableBytes: memInfo.Available,
	}

	gpu, err := d.gpuFn()(ctx)
	switch {
	case err == nil:
		specs.GPU = gpu.Name
		specs.VRAMGB = toGB(gpu.VRAMByte)
	case errors.Is(err, errNoGPU):
	default:
		d.log().Debug("gpu probe failed; assuming cpu only", zap.Error(err))
	}

	return specs, nil
}

// Recommend detects specs and picks a model for them. Detection errors fall
// back to the smallest model.
func (d *Detector) Recommend(ctx context.Context) (string, Specs) {
	specs, err := d.Detect(ctx)
	if err != nil {
		d.log().Error("hardware detection failed", zap.Error(err))
		return FallbackModel, specs
	}

	recommended := Recommend(specs)
	d.log().Info("recommended model", zap.String("model", recommended))
	return recommended, specs
}

func (d *Detector) log() *zap.Logger {
	if d == nil || d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Detector) coresFn() func(ctx context.Context) (int, error) {
	if d.cores != nil {
		return d.cores
	}
	return func(ctx context.Context) (int, error) {
		return cpu.CountsWithContext(ctx, false)
	}
}

func (d *Detector) memoryFn() func(ctx context.Context) (memoryInfo, error) {
	if d.memory != nil {
		return d.memory
	}
	return func(ctx context.Context) (memoryInfo, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return memoryInfo{}, err
		}
		return memoryInfo{Total: vm.Total, Available: vm.Available}, nil
	}
}

func (d *Detector) gpuFn() func(ctx context.Context) (gpuInfo, error) {
	if d.gpu != nil {
		return d.gpu
	}
	return probeNvidiaSMI
}

func probeNvidiaSMI(ctx context.Context) (gpuInfo, error) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return gpuInfo{}, errNoGPU
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, "nvidia-smi", "--query-gpu=name,memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return gpuInfo{}, fmt.Errorf("nvidia-smi: %w", err)
	}

	return parseNvidiaSMI(string(out))
}

// parseNvidiaSMI reads the first "name, MiB" line of a csv query.
func parseNvidiaSMI(output string) (gpuInfo, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := strings.LastIndex(line, ",")
		if idx < 0 {
			return gpuInfo{}, fmt.Errorf("unexpected nvidia-smi line %q", line)
		}

		name := strings.TrimSpace(line[:idx])
		mib, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
		if err != nil {
			return gpuInfo{}, fmt.Errorf("parse nvidia-smi memory %q: %w", line, err)
		}
		if name == "" {
			return gpuInfo{}, errNoGPU
		}

		return gpuInfo{Name: name, VRAMByte: uint64(mib * 1024 * 1024)}, nil
	}

	return gpuInfo{}, errNoGPU
}

func toGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/bytesPerGB*100) / 100
}
