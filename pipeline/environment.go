package pipeline

// Environment is one side of the game distribution. The pipeline
// processes both sides through the srg and patch stages before they
// merge.
type Environment int

const (
	Client Environment = iota
	Server
)

var environments = [2]Environment{Client, Server}

func (e Environment) Side() string {
	if e == Client {
		return "client"
	}
	return "server"
}

// envFiles are the per-side artifacts of the stages before the merge.
type envFiles struct {
	srgJar        string
	patchedSrgJar string
}
