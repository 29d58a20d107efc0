package devserver

import (
	"github.com/spf13/cobra"

	"github.com/borrowbook/borrowbook/internal/business"
	"github.com/borrowbook/borrowbook/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"devserver",
		"BorrowBook development backend",
		"BorrowBook development backend serves the cookie, csrf and refresh contract of the API "+
			"together with an in-memory library, so that clients can be exercised without the real backend.",
		buildInfo,
		cmdutils.RunAsService,
		business.DevServerMain,
	)
}
