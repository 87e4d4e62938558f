package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", TransportSSH:
		return sshTemplate, nil
	case TransportTerminal:
		return terminalTemplate, nil
	default:
		return "", fmt.Errorf("unknown scenario kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const sshTemplate = `document_path = "/home/alice/test.md"
user = "alice"
template = "Hello! My name is {actor_name}"
insert_prefix = "o"
mode_exit_key = "esc"
save_command = ":w\n"
typing_delay = "100ms"
recorder_warmup = "5s"
editor_settle = "1s"
input_settle = "3s"
save_settle = "1s"
wait_timeout = "15m"
editor_command = "kitty -o font_size=12 --start-as=fullscreen -e hx {document}"
# Readiness waits for the collaboration client the editor spawns, not the
# editor itself: it exists only once the editor has joined the document.
editor_process = "client"
output_dir = "out"

[recorder]
launch = "obs"
start = "obs-cmd recording start"
stop = "obs-cmd recording stop"

[status]
addr = ""
cors_origins = ["http://localhost:3000"]

[[actors]]
name = "client1"
transport = "ssh"
host = "192.168.122.11"
ssh_user = "root"
key_path = "~/.ssh/id_ed25519"
known_hosts_path = "~/.ssh/known_hosts"

[[actors]]
name = "client2"
transport = "ssh"
host = "192.168.122.12"
ssh_user = "root"
key_path = "~/.ssh/id_ed25519"
known_hosts_path = "~/.ssh/known_hosts"
`

const terminalTemplate = `document_path = "/tmp/convergectl/test.md"
user = ""
template = "Hello! My name is {actor_name}"
insert_prefix = "o"
mode_exit_key = "esc"
save_command = ":w\n"
typing_delay = "20ms"
recorder_warmup = "0s"
editor_settle = "1s"
input_settle = "1s"
save_settle = "1s"
wait_timeout = "1m"
editor_command = "hx {document}"
# No collaboration client runs locally, so readiness waits for the editor.
editor_process = "hx"
output_dir = "out"

[recorder]
launch = "mkdir -p /tmp/convergectl"
start = "true"
stop = "printf stub > /tmp/convergectl/recording.mkv && echo 'Recording saved to \"/tmp/convergectl/recording.mkv\"'"

[[actors]]
name = "client1"
transport = "terminal"
poll_interval = "200ms"

[[actors]]
name = "client2"
transport = "terminal"
poll_interval = "200ms"
`
