// buildinfoprint is imported for the side effect of printing the buildinfo
// to os.StdErr
package buildinfoprint

import "github.com/kindlab/rnadiff/buildinfo"

func init() {
	buildinfo.PrintToStdErr()
}
