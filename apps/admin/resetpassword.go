package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(schoolID, email, pwd string) error {
	if err := cli.rosterSvc.ResetPassword(context.Background(), schoolID, email, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", email)
	return nil
}
