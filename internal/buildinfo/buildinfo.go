package buildinfo

const Graffiti = "                                        _       \n" +
	" ___ _   _ _ __ _ __ ___   __ _  __ _| |_ ___ \n" +
	"/ __| | | | '__| '__/ _ \\ / _` |/ _` | __/ _ \\\n" +
	"\\__ \\ |_| | |  | | | (_) | (_| | (_| | ||  __/\n" +
	"|___/\\__,_|_|  |_|  \\___/ \\__, |\\__,_|\\__\\___|\n" +
	"                          |___/               \n\n"

var (
	BuildTag string = "v0.0.0"
	Name     string = "SURROGATE"
	Time     string = ""
)

type buildinfo struct{}

func (buildinfo) Tag() string {
	return BuildTag
}

func (buildinfo) Name() string {
	return Name
}

func (buildinfo) Time() string {
	return Time
}

var Info buildinfo
