// Copyright 2024+, The stripefs Authors, see LICENSE for details.

package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/klauspost/cpuid/v2"
	"github.com/stripefs/erasure"
)

var (
	blockSize  = flag.String("size", "10MiB", "Size of each input block.")
	blocks     = flag.Int("blocks", 1, "Total number of blocks")
	kFrags     = flag.Int("k", 4, "Data fragments")
	mFrags     = flag.Int("m", 2, "Parity fragments")
	codec      = flag.String("codec", "vandermonde", "Generator matrix construction")
	codecs     = flag.Bool("codecs", false, "Display codecs and exit")
	invCache   = flag.Bool("cache", true, "Enable inversion cache")
	corrupt    = flag.Int("corrupt", 0, "Erase 1 to n fragments. 0 means up to m fragments.")
	duration   = flag.Int("duration", 10, "Minimum number of seconds to run.")
	progress   = flag.Bool("progress", true, "Display progress while running")
	concurrent = flag.Bool("concurrent", false, "Run blocks in parallel")
	cpu        = flag.Int("cpu", 16, "Set maximum number of cores to use")
	csv        = flag.Bool("csv", false, "Output as CSV")
)

var codecDefinitions = map[string]struct {
	Description string
	MaxM        int
	Opts        []erasure.Option
}{
	"vandermonde": {Description: "Vandermonde style matrix"},
	"cauchy":      {Description: "Cauchy style matrix", Opts: []erasure.Option{erasure.WithCauchyMatrix()}},
	"xor":         {Description: "XOR - supporting only one parity fragment", MaxM: 1, Opts: []erasure.Option{erasure.WithFastOneParityMatrix()}},
}

func main() {
	flag.Parse()
	if *codecs {
		printCodecs(0)
	}
	sz, err := toSize(*blockSize)
	exitErr(err)
	if *kFrags <= 0 {
		exitErr(errors.New("invalid data fragment count"))
	}
	if sz <= 0 {
		exitErr(errors.New("invalid block size"))
	}
	runtime.GOMAXPROCS(*cpu)
	if sz > math.MaxInt || sz < 0 {
		exitErr(errors.New("block size invalid"))
	}
	if *csv {
		fmt.Printf("op\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n", "k", "m", "bsize", "blocks", "concurrency", "codec", "processed bytes", "duration (µs)", "speed ("+sizeUint+"/s)")
	}
	dataSz := int(sz)
	each := (dataSz + *kFrags - 1) / *kFrags

	opts := getOptions(each)
	enc, err := erasure.New(*kFrags, *mFrags, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating codec returned: %s\n", err.Error())
		os.Exit(1)
	}

	total := *kFrags + *mFrags
	data := make([][][]byte, *blocks)
	if *csv {
		*progress = false
	} else {
		fmt.Printf("CPU: %s\n", cpuid.CPU.BrandName)
		fmt.Printf("Benchmarking %d block(s) of %d data (K) and %d parity fragments (M), each %d bytes using %d threads. Total %d bytes.\n\n", *blocks, *kFrags, *mFrags, each, *cpu, *blocks*each*total)
	}

	// Reduce GC overhead
	debug.SetGCPercent(25)
	for i := range data {
		data[i] = erasure.AllocAligned(total, each)
	}
	if *concurrent {
		benchmarkEncodingConcurrent(enc, data)
		benchmarkDecodingConcurrent(enc, data)
	} else {
		benchmarkEncoding(enc, data)
		benchmarkDecoding(enc, data)
	}
}

const updateFreq = time.Second / 3

var spin = [...]byte{'|', '/', '-', '\\'}

const speedDivisor = float64(1 << 20)
const speedUnit = "MiB/s"
const sizeUint = "MiB"

func benchmarkEncoding(enc erasure.Codec, data [][][]byte) {
	start := time.Now()
	finished := int64(0)
	lastUpdate := start
	end := start.Add(time.Second * time.Duration(*duration))
	spinIdx := 0
	for time.Now().Before(end) {
		for _, stripe := range data {
			err := enc.Encode(stripe[:*kFrags], stripe[*kFrags:])
			exitErr(err)
			finished += int64(len(stripe[0]) * len(stripe))
			if *progress && time.Since(lastUpdate) > updateFreq {
				encGB := float64(finished) * (1 / speedDivisor)
				speed := encGB / (float64(time.Since(start)) / float64(time.Second))
				fmt.Printf("\r %s Encoded: %.02f %s @%.02f %s.", string(spin[spinIdx]), encGB, sizeUint, speed, speedUnit)
				spinIdx = (spinIdx + 1) % len(spin)
				lastUpdate = time.Now()
			}
		}
	}
	encGB := float64(finished) * (1 / speedDivisor)
	speed := encGB / (float64(time.Since(start)) / float64(time.Second))
	if *csv {
		fmt.Printf("encode\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n", *kFrags, *mFrags, *blockSize, *blocks, *cpu, *codec, finished, time.Since(start).Microseconds(), speed)
	} else {
		fmt.Printf("\r * Encoded %.00f %s in %v. Speed: %.02f %s (%d+%d:%d)\n", encGB, sizeUint, time.Since(start).Round(time.Millisecond), speed, speedUnit, *kFrags, *mFrags, len(data[0][0]))
	}
}

func benchmarkEncodingConcurrent(enc erasure.Codec, data [][][]byte) {
	start := time.Now()
	finished := int64(0)
	end := start.Add(time.Second * time.Duration(*duration))
	spinIdx := 0
	var wg sync.WaitGroup
	var exit = make(chan struct{})
	wg.Add(len(data))
	for _, stripe := range data {
		go func(stripe [][]byte) {
			defer wg.Done()
			for {
				select {
				case <-exit:
					return
				default:
				}
				err := enc.Encode(stripe[:*kFrags], stripe[*kFrags:])
				exitErr(err)
				atomic.AddInt64(&finished, int64(len(stripe[0])*len(stripe)))
			}
		}(stripe)
	}

	t := time.NewTicker(updateFreq)
	defer t.Stop()

	for range t.C {
		if time.Now().After(end) {
			break
		}
		if *progress {
			encGB := float64(atomic.LoadInt64(&finished)) * (1 / speedDivisor)
			speed := encGB / (float64(time.Since(start)) / float64(time.Second))
			fmt.Printf("\r %s Encoded: %.02f %s @%.02f %s.", string(spin[spinIdx]), encGB, sizeUint, speed, speedUnit)
			spinIdx = (spinIdx + 1) % len(spin)
		}
	}
	close(exit)
	wg.Wait()
	encGB := float64(finished) * (1 / speedDivisor)
	speed := encGB / (float64(time.Since(start)) / float64(time.Second))
	if *csv {
		fmt.Printf("encode conc\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n", *kFrags, *mFrags, *blockSize, *blocks, *cpu, *codec, finished, time.Since(start).Microseconds(), speed)
	} else {
		fmt.Printf("\r * Encoded concurrent %.00f %s in %v. Speed: %.02f %s (%d+%d:%d/%d)\n", encGB, sizeUint, time.Since(start).Round(time.Millisecond), speed, speedUnit, *kFrags, *mFrags, len(data[0][0]), len(data))
	}
}

// eraseRandom flags cor random slots and rebuilds the input and output
// views: survivors keep their buffers, erased slots get nil inputs and
// scratch output buffers.
func eraseRandom(rng *rand.Rand, stripe, input, output, scratch [][]byte, cor int) erasure.SlotSet {
	var erased erasure.SlotSet
	for erased.Count() < cor {
		erased.Set(rng.Intn(len(stripe)))
	}
	for i := range stripe {
		if erased.Test(i) {
			input[i] = nil
			output[i] = scratch[i]
		} else {
			input[i] = stripe[i]
			output[i] = nil
		}
	}
	return erased
}

func benchmarkDecoding(enc erasure.Codec, data [][][]byte) {
	// Prepare
	for _, stripe := range data {
		err := enc.Encode(stripe[:*kFrags], stripe[*kFrags:])
		exitErr(err)
	}
	total := *kFrags + *mFrags
	each := len(data[0][0])
	rng := rand.New(rand.NewSource(0))
	input := make([][]byte, total)
	output := make([][]byte, total)
	scratch := erasure.AllocAligned(total, each)

	start := time.Now()
	finished := int64(0)
	lastUpdate := start
	end := start.Add(time.Second * time.Duration(*duration))
	spinIdx := 0
	for time.Now().Before(end) {
		for _, stripe := range data {
			// Erase a random number of fragments up to what we can allow.
			cor := *corrupt
			if cor == 0 {
				cor = 1 + rng.Intn(*mFrags)
			}
			erased := eraseRandom(rng, stripe, input, output, scratch, cor)
			err := enc.Recover(input, erased, output)
			exitErr(err)
			finished += int64(len(stripe[0]) * len(stripe))
			if *progress && time.Since(lastUpdate) > updateFreq {
				encGB := float64(finished) * (1 / speedDivisor)
				speed := encGB / (float64(time.Since(start)) / float64(time.Second))
				fmt.Printf("\r %s Repaired: %.02f %s @%.02f %s.", string(spin[spinIdx]), encGB, sizeUint, speed, speedUnit)
				spinIdx = (spinIdx + 1) % len(spin)
				lastUpdate = time.Now()
			}
		}
	}
	encGB := float64(finished) * (1 / speedDivisor)
	speed := encGB / (float64(time.Since(start)) / float64(time.Second))
	if *csv {
		fmt.Printf("decode\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n", *kFrags, *mFrags, *blockSize, *blocks, *cpu, *codec, finished, time.Since(start).Microseconds(), speed)
	} else {
		fmt.Printf("\r * Repaired %.00f %s in %v. Speed: %.02f %s (%d+%d:%d)\n", encGB, sizeUint, time.Since(start).Round(time.Millisecond), speed, speedUnit, *kFrags, *mFrags, len(data[0][0]))
	}
}

func benchmarkDecodingConcurrent(enc erasure.Codec, data [][][]byte) {
	// Prepare
	for _, stripe := range data {
		err := enc.Encode(stripe[:*kFrags], stripe[*kFrags:])
		exitErr(err)
	}
	total := *kFrags + *mFrags
	each := len(data[0][0])

	start := time.Now()
	finished := int64(0)
	end := start.Add(time.Second * time.Duration(*duration))
	spinIdx := 0
	var wg sync.WaitGroup
	var exit = make(chan struct{})
	wg.Add(len(data))
	for _, stripe := range data {
		go func(stripe [][]byte) {
			rng := rand.New(rand.NewSource(0))
			input := make([][]byte, total)
			output := make([][]byte, total)
			scratch := erasure.AllocAligned(total, each)
			defer wg.Done()
			for {
				select {
				case <-exit:
					return
				default:
				}
				// Erase a random number of fragments up to what we can allow.
				cor := *corrupt
				if cor == 0 {
					cor = 1 + rng.Intn(*mFrags)
				}
				erased := eraseRandom(rng, stripe, input, output, scratch, cor)
				err := enc.Recover(input, erased, output)
				exitErr(err)
				atomic.AddInt64(&finished, int64(len(stripe[0])*len(stripe)))
			}
		}(stripe)
	}
	t := time.NewTicker(updateFreq)
	defer t.Stop()
	for range t.C {
		if time.Now().After(end) {
			break
		}
		if *progress {
			encGB := float64(atomic.LoadInt64(&finished)) * (1 / speedDivisor)
			speed := encGB / (float64(time.Since(start)) / float64(time.Second))
			fmt.Printf("\r %s Repaired: %.02f %s @%.02f %s.", string(spin[spinIdx]), encGB, sizeUint, speed, speedUnit)
			spinIdx = (spinIdx + 1) % len(spin)
		}
	}
	close(exit)
	wg.Wait()
	encGB := float64(finished) * (1 / speedDivisor)
	speed := encGB / (float64(time.Since(start)) / float64(time.Second))
	if *csv {
		fmt.Printf("decode conc\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\t%v\n", *kFrags, *mFrags, *blockSize, *blocks, *cpu, *codec, finished, time.Since(start).Microseconds(), speed)
	} else {
		fmt.Printf("\r * Repaired concurrent %.00f %s in %v. Speed: %.02f %s (%d+%d:%d/%d)\n", encGB, sizeUint, time.Since(start).Round(time.Millisecond), speed, speedUnit, *kFrags, *mFrags, len(data[0][0]), len(data))
	}
}

func printCodecs(exitCode int) {
	var keys []string
	maxLen := 0
	for k := range codecDefinitions {
		keys = append(keys, k)
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		def := codecDefinitions[k]
		k = k + strings.Repeat(" ", maxLen-len(k))
		fmt.Printf("%s %s. Max K: %d. Max M: %d.", k, def.Description, erasure.MaxDataFragments, maxM(def.MaxM))
		fmt.Print("\n")
	}
	// Exit
	if exitCode >= 0 {
		os.Exit(exitCode)
	}
}

func maxM(codecMax int) int {
	if codecMax > 0 && codecMax < erasure.MaxParityFragments {
		return codecMax
	}
	return erasure.MaxParityFragments
}

func getOptions(fragmentSize int) []erasure.Option {
	var o []erasure.Option
	c, ok := codecDefinitions[*codec]
	if !ok {
		fmt.Fprintf(os.Stderr, "ERR: unknown codec: %q\n", *codec)
		printCodecs(1)
	}
	if c.MaxM > 0 && *mFrags > c.MaxM {
		fmt.Fprintf(os.Stderr, "ERR: maximum parity fragments (m) %d exceeds maximum %d for codec %q\n", *mFrags, c.MaxM, *codec)
		os.Exit(1)
	}
	o = append(o, c.Opts...)
	if !*invCache {
		o = append(o, erasure.WithInversionCache(false))
	}
	o = append(o, erasure.WithAutoGoroutines(fragmentSize))
	return o
}

func exitErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERR: %s\n", err.Error())
		os.Exit(1)
	}
}

// toSize converts a size indication to bytes.
func toSize(size string) (uint64, error) {
	size = strings.ToUpper(strings.TrimSpace(size))
	firstLetter := strings.IndexFunc(size, unicode.IsLetter)
	if firstLetter == -1 {
		firstLetter = len(size)
	}

	bytesString, multiple := size[:firstLetter], size[firstLetter:]
	bytes, err := strconv.ParseUint(bytesString, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse size: %v", err)
	}

	switch multiple {
	case "G", "GIB":
		return bytes * 1 << 30, nil
	case "GB":
		return bytes * 1e9, nil
	case "M", "MIB":
		return bytes * 1 << 20, nil
	case "MB":
		return bytes * 1e6, nil
	case "K", "KIB":
		return bytes * 1 << 10, nil
	case "KB":
		return bytes * 1e3, nil
	case "B", "":
		return bytes, nil
	default:
		return 0, fmt.Errorf("unknown size suffix: %v", multiple)
	}
}
