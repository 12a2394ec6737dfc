package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
)

// Prints the current TOTP code for the admin 2FA secret, or generates a fresh
// secret with -new for initial setup.
func main() {
	secret := flag.String("secret", os.Getenv("ADMIN_TOTP_SECRET"), "base32 TOTP secret (default: $ADMIN_TOTP_SECRET)")
	newSecret := flag.Bool("new", false, "generate a fresh secret instead of a code")
	flag.Parse()

	if *newSecret {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "fiatramp", AccountName: "admin"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Secret: %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
		return
	}

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "no secret: pass -secret, set ADMIN_TOTP_SECRET, or use -new")
		os.Exit(1)
	}

	code, err := totp.GenerateCode(*secret, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate code: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Current TOTP code: %s\n", code)
	fmt.Println("Valid for ~30 seconds")
}
