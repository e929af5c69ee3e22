package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/gray-logic-observatory/internal/auth"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
)

// runToken prints a token signed with the configured JWT secret, for
// scripts that cannot log in.
//
//	observatory token -subject night-operator -role operator -ttl 8h
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "operator", "operator name recorded in the token")
	role := fs.String("role", string(auth.RoleOperator), "viewer or operator")
	ttl := fs.Duration("ttl", 0, "token lifetime (default security.jwt.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl < 0 {
		return fmt.Errorf("ttl must be positive")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not set")
	}
	if *ttl == 0 {
		*ttl = cfg.GetTokenTTL()
	}

	token, err := auth.IssueToken(cfg.Security.JWT.Secret, *subject, auth.Role(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// runHashPassword reads a password from the first line of in and prints
// its Argon2id hash for security.operators[].password_hash.
func runHashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}
