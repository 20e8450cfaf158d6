package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/edusys/core"
	"github.com/trezcool/edusys/core/auth"
	"github.com/trezcool/edusys/core/guard"
	"github.com/trezcool/edusys/core/session"
	"github.com/trezcool/edusys/services/school"
)

const loginCommand = "edusys login"

var (
	readPasswordFunc = term.ReadPassword // mockable

	errNotLoggedIn = errors.New("not logged in: run `" + loginCommand + "` first")
	errResolving   = errors.New("the session could not be resolved, please retry")
)

type commandLine struct {
	auth   *auth.Controller
	school *school.Client
	guard  guard.Guard
	stdin  int
	stderr io.Writer
}

func newCommandLine(ctrl *auth.Controller, client *school.Client) *commandLine {
	cli := &commandLine{
		auth:   ctrl,
		school: client,
		guard:  guard.New(loginCommand),
		stdin:  int(syscall.Stdin),
		stderr: os.Stderr,
	}
	ctrl.Sessions().Subscribe(cli.onTransition)
	return cli
}

func (cli *commandLine) onTransition(t session.Transition) {
	if t.Cause == session.CauseForcedLogout {
		pterm.Warning.WithWriter(cli.stderr).Println("Your session has expired. Please log in again.")
	}
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "edusys",
		Short:         "Edusys - school courses and grades from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.stderr = cmd.ErrOrStderr()
			cli.auth.Start(cmd.Context())
			return nil
		},
	}
	root.AddCommand(
		cli.loginCmd(),
		cli.logoutCmd(),
		cli.whoamiCmd(),
		cli.coursesCmd(),
		cli.courseCmd(),
		cli.gradesCmd(),
	)
	return root
}

// protected runs fn only when the guard renders and the identity has one of roles (any role when empty).
func (cli *commandLine) protected(
	fn func(cmd *cobra.Command, args []string, id session.Identity) error,
	roles ...session.Role,
) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		snap := cli.auth.Session()
		switch cli.guard.Evaluate(snap).Decision {
		case guard.Hold:
			return errResolving
		case guard.Redirect:
			return errNotLoggedIn
		}
		id := *snap.Identity
		if len(roles) > 0 && !id.HasRole(roles...) {
			return core.ErrForbidden
		}
		return fn(cmd, args, id)
	}
}

func (cli *commandLine) loginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the school API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if snap := cli.auth.Session(); snap.Authenticated() {
				pterm.Info.WithWriter(out).Printfln("Already logged in as %s. Run `edusys logout` first.", snap.Identity.Username)
				return nil
			}

			if username == "" {
				fmt.Fprint(out, "Username: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return errors.Wrap(err, "reading username")
				}
				username = strings.TrimSpace(line)
			}

			fmt.Fprint(out, "Password: ")
			pwd, err := readPasswordFunc(cli.stdin)
			fmt.Fprintln(out)
			if err != nil {
				return errors.Wrap(err, "reading password")
			}

			id, err := cli.auth.Login(cmd.Context(), auth.LoginRequest{Username: username, Password: string(pwd)})
			if err != nil {
				return err
			}
			pterm.Success.WithWriter(out).Printfln("Logged in as %s (%s)", id.DisplayName(), id.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "The username. It is prompted when missing.")
	return cmd
}

func (cli *commandLine) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !cli.auth.Session().Authenticated() {
				pterm.Info.WithWriter(out).Println("Not logged in.")
				return nil
			}
			if err := cli.auth.Logout(cmd.Context()); err != nil {
				pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("The API did not acknowledge the logout: %v", err)
			}
			pterm.Success.WithWriter(out).Println("Logged out")
			return nil
		},
	}
}

func (cli *commandLine) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: cli.protected(func(cmd *cobra.Command, args []string, id session.Identity) error {
			return pterm.DefaultTable.WithWriter(cmd.OutOrStdout()).WithData(pterm.TableData{
				{"ID", strconv.Itoa(id.ID)},
				{"Username", id.Username},
				{"Name", id.DisplayName()},
				{"Email", id.Email},
				{"Role", string(id.Role)},
			}).Render()
		}),
	}
}

func (cli *commandLine) coursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List my courses",
		Args:  cobra.NoArgs,
		RunE: cli.protected(func(cmd *cobra.Command, args []string, id session.Identity) error {
			list, err := cli.school.Courses(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list.Courses) == 0 {
				pterm.Info.WithWriter(out).Println("No courses yet.")
				return nil
			}

			data := pterm.TableData{{"ID", "SUBJECT", "ROOM", "TEACHER", "TO SUBMIT"}}
			for _, c := range list.Courses {
				data = append(data, []string{
					strconv.Itoa(c.ID),
					c.SubjectName,
					c.Room,
					c.TeacherName(),
					strconv.Itoa(c.UnsubmittedTasks),
				})
			}
			return pterm.DefaultTable.WithWriter(out).WithHasHeader().WithData(data).Render()
		}),
	}
}

func (cli *commandLine) courseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "course ID",
		Short: "Show a course with its tasks and announcements",
		Args:  cobra.ExactArgs(1),
		RunE: cli.protected(func(cmd *cobra.Command, args []string, id session.Identity) error {
			courseID, err := strconv.Atoi(args[0])
			if err != nil || courseID <= 0 {
				return errors.Errorf("invalid course ID %q", args[0])
			}

			detail, err := cli.school.Course(cmd.Context(), courseID)
			if err != nil {
				return err
			}
			anns, err := cli.school.CourseAnnouncements(cmd.Context(), courseID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s, room %s, %s\n", detail.SubjectName, detail.TeacherName, detail.Course.Room, formatTime(detail.Course.Schedule))
			if detail.Course.Description != "" {
				fmt.Fprintln(out, detail.Course.Description)
			}

			fmt.Fprintln(out, "\nTasks")
			if len(detail.Tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
			} else {
				data := pterm.TableData{{"TITLE", "DEADLINE"}}
				for _, t := range detail.Tasks {
					data = append(data, []string{t.Title, formatTime(t.Deadline)})
				}
				if err = pterm.DefaultTable.WithWriter(out).WithHasHeader().WithData(data).Render(); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "\nAnnouncements")
			if len(anns.Announcements) == 0 {
				fmt.Fprintln(out, "No announcements.")
			}
			for _, a := range anns.Announcements {
				fmt.Fprintf(out, "- %s (%s, %s)\n  %s\n", a.Title, a.UserFullName, formatTime(a.Date), a.Content)
			}
			return nil
		}),
	}
}

func (cli *commandLine) gradesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grades",
		Short: "Show my grades (students only)",
		Args:  cobra.NoArgs,
		RunE: cli.protected(func(cmd *cobra.Command, args []string, id session.Identity) error {
			grades, err := cli.school.StudentGrades(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			data := pterm.TableData{{"COURSE", "TASK", "GRADE"}}
			for _, cg := range grades.TaskGrades {
				for _, tg := range cg.Tasks {
					data = append(data, []string{cg.CourseSubject, tg.TaskTitle, strconv.FormatFloat(tg.Grade, 'f', 2, 64)})
				}
			}
			if len(data) > 1 {
				if err = pterm.DefaultTable.WithWriter(out).WithHasHeader().WithData(data).Render(); err != nil {
					return err
				}
			}

			if grades.Average == nil {
				pterm.Info.WithWriter(out).Println("Nothing graded yet.")
				return nil
			}
			fmt.Fprintf(out, "Average: %s\n", strconv.FormatFloat(*grades.Average, 'f', 2, 64))
			return nil
		}, session.RoleStudent),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Mon 02 Jan 2006 15:04")
}
