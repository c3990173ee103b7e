package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/bootstrap"
	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports"
	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/session"
)

const (
	defaultCommandTimeout = time.Minute
	passwordEnv           = "AUTHSESSION_PASSWORD"
)

type loginOptions struct {
	Email    string
	Password string
	Code     string
}

type registerOptions struct {
	Email    string
	Password string
	FullName string
}

type verifyOptions struct {
	Email string
	Code  string
}

type magicLinkOptions struct {
	Email string
	Token string
}

type resetPasswordOptions struct {
	Token    string
	Password string
}

type logoutOptions struct {
	AllDevices bool
}

// withRuntime runs fn against a freshly built runtime bounded by the default timeout.
func withRuntime(cmdCtx *commandContext, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	rt, cleanup, err := openRuntime(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, rt)
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args)
	if err != nil {
		return err
	}
	if opts.Password == "" {
		if opts.Password, err = cmdCtx.readSecret("Password: "); err != nil {
			return err
		}
	}

	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		loginErr := rt.Sessions.Login(ctx, ports.LoginInput{Email: opts.Email, Password: opts.Password})
		if loginErr != nil {
			if remaining, lerr := rt.Sessions.Lockout().Remaining(ctx); lerr == nil && remaining > 0 {
				if werr := writef(cmdCtx.Out, "Too many failed attempts; try again in %s\n",
					remaining.Round(time.Second)); werr != nil {
					return fmt.Errorf("print lockout: %w", werr)
				}
			}
			return loginErr
		}

		if rt.Sessions.Session().Status == domainauth.StatusTwoFactorNeeded {
			if tfErr := completeTwoFactor(ctx, cmdCtx, rt.Sessions, opts.Code); tfErr != nil {
				return tfErr
			}
		}
		return printSignedIn(cmdCtx, rt.Sessions.Session())
	})
}

func completeTwoFactor(ctx context.Context, cmdCtx *commandContext, sessions *session.Manager, code string) error {
	if code == "" {
		prompt := fmt.Sprintf("Two-factor code (expires in %s): ", sessions.ChallengeRemaining().Round(time.Second))
		var err error
		if code, err = cmdCtx.readLine(prompt); err != nil {
			sessions.CancelTwoFactor()
			return err
		}
	}
	return sessions.VerifyTwoFactorLogin(ctx, code)
}

func printSignedIn(cmdCtx *commandContext, s domainauth.Session) error {
	who := "unknown user"
	if s.User != nil && s.User.Email != "" {
		who = s.User.Email
	}
	return writef(cmdCtx.Out, "Signed in as %s until %s\n", who, s.ExpiresAt.Local().Format(time.RFC1123))
}

func runLogout(cmdCtx *commandContext, args []string) error {
	opts, err := parseLogoutFlags(args)
	if err != nil {
		return err
	}
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if initErr := rt.Sessions.Init(ctx); initErr != nil {
			cmdCtx.Logger.Warn("restore session before logout failed", "error", initErr)
		}
		if !rt.Sessions.Session().Status.HoldsToken() {
			return writeln(cmdCtx.Out, "No active session")
		}
		rt.Sessions.Logout(ctx, session.LogoutOptions{Reason: session.ReasonUser, AllDevices: opts.AllDevices})
		return writeln(cmdCtx.Out, "Signed out")
	})
}

func runStatus(cmdCtx *commandContext, _ []string) error {
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if err := rt.Sessions.Init(ctx); err != nil {
			return err
		}
		lockout, err := rt.Sessions.Lockout().Remaining(ctx)
		if err != nil {
			cmdCtx.Logger.Warn("read lockout failed", "error", err)
		}
		return printStatus(cmdCtx, rt.Sessions.Session(), lockout, rt.Clock().Now())
	})
}

func printStatus(cmdCtx *commandContext, s domainauth.Session, lockout time.Duration, now time.Time) error {
	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	rows := [][2]string{{"STATUS", string(s.Status)}}
	if s.User != nil {
		rows = append(rows, [2]string{"USER", s.User.Email})
	}
	if !s.ExpiresAt.IsZero() {
		rows = append(rows,
			[2]string{"EXPIRES", s.ExpiresAt.Local().Format(time.RFC3339)},
			[2]string{"EXPIRES IN", s.TimeUntilExpiry(now).Round(time.Second).String()})
	}
	if s.Error != "" {
		rows = append(rows, [2]string{"ERROR", s.Error})
	}
	if lockout > 0 {
		rows = append(rows, [2]string{"LOCKED FOR", lockout.Round(time.Second).String()})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("print status: %w", err)
		}
	}
	return tw.Flush()
}

func runRegister(cmdCtx *commandContext, args []string) error {
	opts, err := parseRegisterFlags(args)
	if err != nil {
		return err
	}
	if opts.Password == "" {
		if opts.Password, err = cmdCtx.readSecret("Password: "); err != nil {
			return err
		}
	}
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if regErr := rt.Sessions.Register(ctx, ports.RegisterInput{
			Email:    opts.Email,
			Password: opts.Password,
			FullName: opts.FullName,
		}); regErr != nil {
			return regErr
		}
		return writef(cmdCtx.Out, "Account created. Confirm it with: authsession verify --email %s --code <code>\n",
			opts.Email)
	})
}

func runVerify(cmdCtx *commandContext, args []string) error {
	opts, err := parseVerifyFlags(args)
	if err != nil {
		return err
	}
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if awaitErr := rt.Sessions.AwaitVerification(opts.Email); awaitErr != nil {
			return awaitErr
		}
		if verifyErr := rt.Sessions.VerifyAccount(ctx, opts.Code); verifyErr != nil {
			return verifyErr
		}
		return printSignedIn(cmdCtx, rt.Sessions.Session())
	})
}

func runMagicLink(cmdCtx *commandContext, args []string) error {
	opts, err := parseMagicLinkFlags(args)
	if err != nil {
		return err
	}
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if opts.Token == "" {
			if sendErr := rt.Sessions.SendMagicLink(ctx, opts.Email); sendErr != nil {
				return sendErr
			}
			return writef(cmdCtx.Out, "Sign-in link sent to %s\n", opts.Email)
		}
		if verifyErr := rt.Sessions.VerifyMagicLink(ctx, opts.Token); verifyErr != nil {
			return verifyErr
		}
		return printSignedIn(cmdCtx, rt.Sessions.Session())
	})
}

func runResetPassword(cmdCtx *commandContext, args []string) error {
	opts, err := parseResetPasswordFlags(args)
	if err != nil {
		return err
	}
	if opts.Password == "" {
		if opts.Password, err = cmdCtx.readSecret("New password: "); err != nil {
			return err
		}
	}
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if resetErr := rt.Sessions.ResetPassword(ctx, opts.Token, opts.Password, ""); resetErr != nil {
			return resetErr
		}
		return writeln(cmdCtx.Out, "Password updated. Sign in with the new password.")
	})
}

func runTwoFactorStatus(cmdCtx *commandContext, _ []string) error {
	return withRuntime(cmdCtx, func(ctx context.Context, rt *bootstrap.Runtime) error {
		if err := rt.Sessions.Init(ctx); err != nil {
			return err
		}
		if !rt.Sessions.Session().IsAuthenticated() {
			return errors.New("not signed in")
		}
		enabled, err := rt.TwoFactor.Status(ctx)
		if err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return writef(cmdCtx.Out, "Two-factor authentication is %s\n", state)
	})
}

func parseLoginFlags(args []string) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.Password, "password", "", "Password (default: $"+passwordEnv+" or prompt)")
	fs.StringVar(&opts.Code, "code", "", "Two-factor code, when the account requires one")

	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	opts.Code = strings.TrimSpace(opts.Code)
	if opts.Password == "" {
		opts.Password = os.Getenv(passwordEnv)
	}
	if opts.Email == "" {
		return loginOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func parseLogoutFlags(args []string) (logoutOptions, error) {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts logoutOptions
	fs.BoolVar(&opts.AllDevices, "all-devices", false, "Revoke sessions on every device")
	if err := fs.Parse(args); err != nil {
		return logoutOptions{}, err
	}
	return opts, nil
}

func parseRegisterFlags(args []string) (registerOptions, error) {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts registerOptions
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.Password, "password", "", "Password (default: $"+passwordEnv+" or prompt)")
	fs.StringVar(&opts.FullName, "name", "", "Full name")

	if err := fs.Parse(args); err != nil {
		return registerOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	opts.FullName = strings.TrimSpace(opts.FullName)
	if opts.Password == "" {
		opts.Password = os.Getenv(passwordEnv)
	}
	if opts.Email == "" {
		return registerOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func parseVerifyFlags(args []string) (verifyOptions, error) {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts verifyOptions
	fs.StringVar(&opts.Email, "email", "", "Email the account was registered with (required)")
	fs.StringVar(&opts.Code, "code", "", "Verification code from the email (required)")

	if err := fs.Parse(args); err != nil {
		return verifyOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	opts.Code = strings.TrimSpace(opts.Code)
	if opts.Email == "" || opts.Code == "" {
		return verifyOptions{}, errors.New("--email and --code are required")
	}
	return opts, nil
}

func parseMagicLinkFlags(args []string) (magicLinkOptions, error) {
	fs := flag.NewFlagSet("magic-link", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts magicLinkOptions
	fs.StringVar(&opts.Email, "email", "", "Send a sign-in link to this email")
	fs.StringVar(&opts.Token, "token", "", "Sign in with the token from a received link")

	if err := fs.Parse(args); err != nil {
		return magicLinkOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	opts.Token = strings.TrimSpace(opts.Token)
	if (opts.Email == "") == (opts.Token == "") {
		return magicLinkOptions{}, errors.New("exactly one of --email or --token is required")
	}
	return opts, nil
}

func parseResetPasswordFlags(args []string) (resetPasswordOptions, error) {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts resetPasswordOptions
	fs.StringVar(&opts.Token, "token", "", "Reset token from the email (required)")
	fs.StringVar(&opts.Password, "password", "", "New password (default: $"+passwordEnv+" or prompt)")

	if err := fs.Parse(args); err != nil {
		return resetPasswordOptions{}, err
	}
	opts.Token = strings.TrimSpace(opts.Token)
	if opts.Password == "" {
		opts.Password = os.Getenv(passwordEnv)
	}
	if opts.Token == "" {
		return resetPasswordOptions{}, errors.New("--token is required")
	}
	return opts, nil
}

// readLine prompts on Out and reads one line from In. The reader is shared so buffered input
// survives across prompts.
func (c *commandContext) readLine(prompt string) (string, error) {
	if err := write(c.Out, prompt); err != nil {
		return "", fmt.Errorf("print prompt: %w", err)
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	line, err := c.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return line, nil
}

func (c *commandContext) readSecret(prompt string) (string, error) {
	secret, err := c.readLine(prompt)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.New("empty input")
	}
	return secret, nil
}
