package useragent

import (
	"fmt"
	"runtime"

	"github.com/linlay/agent-webclient/pkg/version"
)

var Header = fmt.Sprintf("AgentWebclient/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
