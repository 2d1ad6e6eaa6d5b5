// Package trace reads the per-core instruction files a run is seeded
// with: one line per instruction, `<opcode> <hex-value>`, named
// `<base>_<coreIdx>.data`.
package trace

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sarchlab/snoopsim/instruction"
)

// NumCores is the fixed core count every trace set is loaded for.
const NumCores = 4

// Verbose gates the per-file load summary; cmd/snoopsim sets it from
// --verbose/SNOOPSIM_VERBOSE.
var Verbose bool

// Load reads the NumCores `<base>_<coreIdx>.data` files under
// dataFolder concurrently and returns one instruction slice per core, in
// core-index order. It fails closed: any file or parse error aborts the
// whole load and no partial result is returned.
func Load(ctx context.Context, dataFolder, base string) ([][]instruction.Instruction, error) {
	results := make([][]instruction.Instruction, NumCores)
	errs := make([]error, NumCores)

	var wg sync.WaitGroup
	for coreNum := 0; coreNum < NumCores; coreNum++ {
		wg.Add(1)
		go func(coreNum int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[coreNum] = err
				return
			}
			path := filepath.Join(dataFolder, fmt.Sprintf("%s_%d.data", base, coreNum))
			instructions, err := loadFile(path)
			if err != nil {
				errs[coreNum] = err
				return
			}
			results[coreNum] = instructions
		}(coreNum)
	}
	wg.Wait()

	for coreNum, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("trace: core %d: %w", coreNum, err)
		}
	}

	return results, nil
}

func loadFile(path string) ([]instruction.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var instructions []instruction.Instruction
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"<opcode> <value>\", got %q", path, lineNum, line)
		}

		opcode, value := fields[0], fields[1]

		// The value is always hex-parsed, addresses and compute cycle
		// counts alike: trace files never mix bases within a field.
		parsed, err := strconv.ParseUint(value, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad value %q: %w", path, lineNum, value, err)
		}

		var inst instruction.Instruction
		switch opcode {
		case "0":
			inst = instruction.NewLoad(uint32(parsed))
		case "1":
			inst = instruction.NewStore(uint32(parsed))
		case "2":
			inst = instruction.NewCompute(int(parsed))
		default:
			return nil, fmt.Errorf("%s:%d: invalid opcode %q", path, lineNum, opcode)
		}
		instructions = append(instructions, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if Verbose {
		log.Printf("trace: loaded %d instructions from %s", len(instructions), path)
	}
	return instructions, nil
}
