package cli_helpers

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// WarnOnBool warns about a lone "true" or "false" argument. urfave/cli only
// understands --flag=true or --flag for booleans and silently drops the
// arguments that follow.
func WarnOnBool(args []string) {
	if len(args) < 2 {
		return
	}

	for idx, a := range args[1:] {
		arg := strings.ToLower(a)
		if arg != "true" && arg != "false" {
			continue
		}

		supposedFlag := "--key"
		if idx > 0 {
			supposedFlag = args[idx]
		}

		logrus.Warningf("boolean parameters must be passed in the command line with %s=%s", supposedFlag, arg)
		logrus.Warningln("parameters after this may be ignored")
		return
	}
}
