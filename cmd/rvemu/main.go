// Command rvemu is the CLI front end for the RV64I userland emulator: a
// single "run" subcommand that loads a statically-linked ELF64 binary
// and interprets it until it exits.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"rvemu/internal/disasm"
	"rvemu/internal/emulator"
	"rvemu/internal/insn"
	"rvemu/internal/syscalls"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 || os.Args[1] != "run" {
		log.Fatal("usage: rvemu run [-isa I] [-syscall minilib] [-stack 8192] [-d] [-v] <elf-file> [args...]")
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	isaFlag := fs.String("isa", "I", "ISA letter set, one character per extension (I is mandatory)")
	syscallFlag := fs.String("syscall", "minilib", "guest syscall family: glibc | newlib | minilib")
	stackKiB := fs.Uint64("stack", 8192, "guest stack size in KiB")
	debug := fs.Bool("d", false, "single-step under the built-in debug loop")
	verbose := fs.Bool("v", false, "trace each instruction before executing it")
	fs.Parse(os.Args[2:])

	args := fs.Args()
	if len(args) < 1 {
		log.Fatal("usage: rvemu run [-isa I] [-syscall minilib] [-stack 8192] [-d] [-v] <elf-file> [args...]")
	}
	path := args[0]

	buf, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}

	handler, err := syscallHandler(*syscallFlag)
	if err != nil {
		log.Fatal(err)
	}

	b := emulator.New().Syscall(handler).StackSize(*stackKiB * 1024)
	sets, err := isaSets(*isaFlag)
	if err != nil {
		log.Fatal(err)
	}
	for _, set := range sets {
		b = b.Decoder(set)
	}

	e, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer e.Close()

	if err := e.LoadELF(buf); err != nil {
		log.Fatal(err)
	}

	code, err := run(e, *debug, *verbose)
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(int(code))
}

// syscallHandler resolves the -syscall flag to a handler. Only minilib
// is fully implemented; the other two values are accepted (matching the
// CLI surface the original exposed) but every call they service reports
// unimplemented.
func syscallHandler(family string) (syscalls.Handler, error) {
	switch family {
	case "minilib":
		return &syscalls.Minilib{Stdout: os.Stdout}, nil
	case "newlib":
		return &syscalls.Newlib{}, nil
	case "glibc":
		return &syscalls.Glibc{}, nil
	default:
		return nil, fmt.Errorf("rvemu: unknown syscall family %q", family)
	}
}

// isaSets translates the -isa letter string into decoder registrations.
// The base integer set is mandatory and always registered first
// regardless of whether the caller spelled "I" explicitly. Zicsr and
// Zifencei opt in via their own lowercase extension words appended after
// the base letter (e.g. "Izicsr"); every other requested extension has
// only a reserved decoder slot and is rejected.
func isaSets(letters string) ([]insn.Set, error) {
	sets := []insn.Set{insn.SetI}
	rest := letters
	if len(rest) > 0 && (rest[0] == 'I' || rest[0] == 'i') {
		rest = rest[1:]
	}
	switch rest {
	case "":
	case "zicsr":
		sets = append(sets, insn.SetZicsr)
	case "zifencei":
		sets = append(sets, insn.SetZifencei)
	case "zicsrzifencei", "zifenceizicsr":
		sets = append(sets, insn.SetZicsr, insn.SetZifencei)
	default:
		return nil, fmt.Errorf("rvemu: unsupported ISA set %q (only I, with optional zicsr/zifencei, is implemented)", letters)
	}
	return sets, nil
}

// run drives the emulator to completion, either free-running or under
// the debug single-step loop, returning the guest's exit code.
func run(e *emulator.Emulator, debugMode, verbose bool) (int64, error) {
	if !debugMode && !verbose {
		return e.Run()
	}

	for {
		if verbose {
			pc, _ := e.ReadRegisters()
			var word [4]byte
			if n, ferr := e.ReadMemory(pc, word[:]); ferr == nil && n == len(word) {
				raw := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
				log.Printf("rvemu: pc=%#x %s", pc, disasm.Disassemble(raw))
			}
		}
		reason, err := e.SingleStep()
		if err != nil {
			var exit *syscalls.ExitError
			if errors.As(err, &exit) {
				return exit.Code, nil
			}
			return 0, err
		}
		if exited, ok := reason.(emulator.Exited); ok {
			return exited.Code, nil
		}
		if debugMode {
			log.Print("rvemu: paused...")
			fmt.Scanln()
		}
	}
}
