package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/exlab-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// hash-secret prints a bcrypt hash for ADMIN_SECRET_HASH. On a terminal the
// secret is read twice without echo; otherwise the first stdin line is used.
func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	secret, err := readSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(secret) < 8 {
		fmt.Fprintln(os.Stderr, "Error: secret must be at least 8 characters")
		os.Exit(1)
	}

	hash, err := service.HashSecret(secret, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hash secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Admin secret: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat secret: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("secrets do not match")
	}
	return string(first), nil
}
