package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPlatform is the image platform pulled when none is configured.
const DefaultPlatform = "linux/amd64"

// DefaultMountPath is where the destination is mounted inside the rsync container.
const DefaultMountPath = "/games"

// DefaultRsyncArgs produce the progress2 output the classifier understands.
var DefaultRsyncArgs = []string{"-aP", "--numeric-ids", "--inplace", "--info=progress2,stats2", "--no-i-r"}

// ensure interfaces are implemented
var (
	_ Provider = (*DockerPull)(nil)
	_ Provider = (*ContainerRsync)(nil)
)

// DockerPull pulls repository:tag into the local docker image store. The
// destination is only used for the history record.
type DockerPull struct {
	Repository string
	Platform   string
	ExtraArgs  []string
}

// NewDockerPull creates a DockerPull for repository.
func NewDockerPull(repository string) *DockerPull {
	return &DockerPull{Repository: repository, Platform: DefaultPlatform}
}

func (p *DockerPull) Name() string { return "pull" }

func (p *DockerPull) Build(tag, _ string) (Command, error) {
	if p.Repository == "" {
		return Command{}, ErrMissingRepository
	}

	args := []string{"docker", "pull"}
	if p.Platform != "" {
		args = append(args, "--platform", quote(p.Platform))
	}
	for _, a := range p.ExtraArgs {
		args = append(args, quote(a))
	}
	image := p.Repository + ":" + tag
	args = append(args, quote(image))

	return Command{
		Run:     "export DOCKER_BUILDKIT=1 && " + strings.Join(args, " "),
		Cleanup: "pkill -f " + quote(pullPattern(image)),
	}, nil
}

// pullPattern matches command lines ending in a pull of exactly image, so
// a cleanup never reaches pulls of other tags. The [d] keeps the pattern
// from matching the cleanup's own command line.
func pullPattern(image string) string {
	return "[d]ocker pull.*" + regexp.QuoteMeta(image) + "$"
}

// ContainerRsync runs repository:tag with the destination mounted and copies
// the image's /home into it with rsync. A container left over from an earlier
// run of the same tag is removed first, since the name would conflict.
type ContainerRsync struct {
	Repository string
	MountPath  string
	SourcePath string
	RsyncArgs  []string
}

// NewContainerRsync creates a ContainerRsync with the default mount and rsync flags.
func NewContainerRsync(repository string) *ContainerRsync {
	return &ContainerRsync{
		Repository: repository,
		MountPath:  DefaultMountPath,
		SourcePath: "/home/",
		RsyncArgs:  DefaultRsyncArgs,
	}
}

func (p *ContainerRsync) Name() string { return "rsync" }

func (p *ContainerRsync) Build(tag, destination string) (Command, error) {
	if p.Repository == "" {
		return Command{}, ErrMissingRepository
	}
	if destination == "" {
		return Command{}, ErrMissingDestination
	}

	mount := p.MountPath
	if mount == "" {
		mount = DefaultMountPath
	}
	source := p.SourcePath
	if source == "" {
		source = "/home/"
	}
	rsyncArgs := p.RsyncArgs
	if len(rsyncArgs) == 0 {
		rsyncArgs = DefaultRsyncArgs
	}

	quoted := make([]string, 0, len(rsyncArgs))
	for _, a := range rsyncArgs {
		quoted = append(quoted, quote(a))
	}
	inner := fmt.Sprintf("apk add --no-cache rsync && rsync %s %s %s/ && echo %s",
		strings.Join(quoted, " "), quote(source), quote(strings.TrimSuffix(mount, "/")),
		quote("Transfer completed for "+tag))

	remove := "docker rm -f " + quote(tag)
	run := remove + " >/dev/null 2>&1; " + strings.Join([]string{
		"docker", "run", "--rm",
		"--name", quote(tag),
		"-v", quote(destination + ":" + mount),
		quote(p.Repository + ":" + tag),
		"sh", "-c", quote(inner),
	}, " ")

	return Command{
		Run:     run,
		Cleanup: remove,
	}, nil
}
