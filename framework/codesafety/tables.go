package codesafety

func set(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// dangerousCalls lists, per restricted module, the functions that mutate the
// file system or the process table. Functions of a restricted module that are
// not listed stay allowed (os.getcwd, os.listdir, sys.version, ...).
var dangerousCalls = map[string]map[string]bool{
	"os": set(
		"system", "popen", "remove", "unlink", "rmdir", "removedirs",
		"rename", "renames", "replace", "mkdir", "makedirs", "mkfifo", "mknod",
		"chmod", "chown", "lchown", "link", "symlink", "truncate",
		"kill", "killpg", "fork", "forkpty",
		"execl", "execle", "execlp", "execlpe", "execv", "execve", "execvp", "execvpe",
		"spawnl", "spawnle", "spawnlp", "spawnlpe", "spawnv", "spawnve", "spawnvp", "spawnvpe",
		"posix_spawn", "posix_spawnp", "putenv", "unsetenv", "chdir", "chroot",
	),
	"os.path": set(),
	"sys":     set("exit"),
	"subprocess": set(
		"run", "call", "check_call", "check_output", "Popen", "getoutput", "getstatusoutput",
	),
	"shutil": set(
		"copy", "copy2", "copyfile", "copyfileobj", "copytree", "move", "rmtree",
		"chown", "make_archive", "unpack_archive",
	),
	"pathlib.Path": set(
		"write_text", "write_bytes", "unlink", "rmdir", "mkdir", "rename",
		"replace", "touch", "chmod", "symlink_to", "hardlink_to",
	),
	"tempfile": set(
		"mkstemp", "mkdtemp", "NamedTemporaryFile", "TemporaryFile",
		"SpooledTemporaryFile", "TemporaryDirectory",
	),
	"builtins": set("exec", "eval", "compile", "__import__"),
}

// pathConstructors resolve a constructor call to the class whose methods are
// listed in dangerousCalls, so Path("x").unlink() is caught.
var pathConstructors = map[string]string{
	"pathlib.Path":        "pathlib.Path",
	"pathlib.PosixPath":   "pathlib.Path",
	"pathlib.WindowsPath": "pathlib.Path",
}

// jsMutationIdentifiers are matched case-insensitively on word boundaries,
// with or without the Node "Sync" suffix.
var jsMutationIdentifiers = []string{
	"writeFile", "appendFile", "unlink", "rmdir", "mkdir", "rename",
	"chmod", "chown", "rm", "copyFile", "cp", "symlink", "truncate",
	"eval", "exec", "spawn",
	"fs.write", "fs.append", "fs.unlink",
	"child_process", "process.exit",
}

// jsFSMutators are the fs methods that count as writes.
var jsFSMutators = []string{
	"write", "append", "unlink", "rmdir", "mkdir", "rename", "chmod", "chown",
	"rm", "copyFile", "cp", "symlink", "truncate",
}
