package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	usrRepo  user.Repository
	orgSvc   org.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  adduser -username USERNAME -email EMAIL [-name NAME] [-admin | -role ROLE...] - add or update a user\n")
	cli.printf("  resetpassword -username USERNAME|EMAIL - reset user's password\n")
	cli.printf("  createorg -name NAME -owner USERNAME|EMAIL [-slug SLUG] [-kind KIND] - create an organization\n")
	cli.printf("  migrate COMMAND [ARGS] - run a goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix\n")
}

type rolesFlag []string

func (r *rolesFlag) String() string { return fmt.Sprint(*r) }

func (r *rolesFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// readPassword prompts for a password; an empty one prints the usage of `cmd`.
func (cli *commandLine) readPassword(cmd *flag.FlagSet) (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	var addUserRoles rolesFlag
	addUserCmd.Var(&addUserRoles, "role", "A role to grant, eg. editor: (repeatable).")
	addUserIsAdmin := addUserCmd.Bool("admin", false, "Grant every role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	createOrgCmd := flag.NewFlagSet("createorg", flag.ContinueOnError)
	createOrgName := createOrgCmd.String("name", "", "The organization's name.")
	createOrgSlug := createOrgCmd.String("slug", "", "The organization's slug; derived from the name if empty.")
	createOrgKind := createOrgCmd.String("kind", "", "brand, school, team (default) or personal.")
	createOrgOwner := createOrgCmd.String("owner", "", "The owner's username or email.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		roles := []string(addUserRoles)
		if *addUserIsAdmin {
			roles = append([]string(nil), user.AllRoles...)
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, roles)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "createorg":
		if err := createOrgCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createOrgName == "" || *createOrgOwner == "" {
			createOrgCmd.Usage()
			return errHelp
		}
		return cli.createOrg(org.NewOrganization{Name: *createOrgName, Slug: *createOrgSlug, Kind: *createOrgKind}, *createOrgOwner)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
