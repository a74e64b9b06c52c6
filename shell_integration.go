package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ShellIntegrationScripts record every command on the next prompt and bind
// Ctrl-R to the interactive picker. The picker writes its choice to a temp
// file so its own UI can use the terminal.
var ShellIntegrationScripts = map[string]string{
	"zsh": `
# rehash shell integration for Zsh
export REHASH_SESSION_ID="${REHASH_SESSION_ID:-$(command rehash session-id)}"

__rehash_preexec() {
    __rehash_last_cmd="$1"
}

__rehash_precmd() {
    local ret=$?
    if [[ -n "$__rehash_last_cmd" ]]; then
        command rehash add --exit-code "$ret" -- "$__rehash_last_cmd"
        unset __rehash_last_cmd
    fi
}

__rehash_search() {
    local out
    out="$(mktemp)"
    command rehash interactive --prefix "$BUFFER" --output-file "$out" </dev/tty
    if [[ -s "$out" ]]; then
        BUFFER="$(<"$out")"
        CURSOR=${#BUFFER}
    fi
    rm -f "$out"
    zle reset-prompt
}

autoload -Uz add-zsh-hook
add-zsh-hook preexec __rehash_preexec
add-zsh-hook precmd __rehash_precmd
zle -N __rehash_search
bindkey '^R' __rehash_search
`,
	"bash": `
# rehash shell integration for Bash
export REHASH_SESSION_ID="${REHASH_SESSION_ID:-$(command rehash session-id)}"

__rehash_prompt() {
    local ret=$?
    local line num cmd
    line="$(HISTTIMEFORMAT= builtin history 1)"
    num="$(sed -E 's/^ *([0-9]+).*/\1/' <<<"$line")"
    cmd="$(sed -E 's/^ *[0-9]+\*? *//' <<<"$line")"
    # history 1 repeats the last entry on empty prompts
    if [[ -n "$cmd" && "$num" != "$__rehash_last_num" ]]; then
        command rehash add --exit-code "$ret" -- "$cmd"
    fi
    __rehash_last_num="$num"
    return $ret
}

__rehash_search() {
    local out
    out="$(mktemp)"
    command rehash interactive --prefix "$READLINE_LINE" --output-file "$out" </dev/tty
    if [[ -s "$out" ]]; then
        READLINE_LINE="$(<"$out")"
        READLINE_POINT=${#READLINE_LINE}
    fi
    rm -f "$out"
}

__rehash_last_num="$(HISTTIMEFORMAT= builtin history 1 | sed -E 's/^ *([0-9]+).*/\1/')"
PROMPT_COMMAND="__rehash_prompt${PROMPT_COMMAND:+; $PROMPT_COMMAND}"
bind -x '"\C-r": __rehash_search'
`,
	"fish": `
# rehash shell integration for Fish
if not set -q REHASH_SESSION_ID
    set -gx REHASH_SESSION_ID (command rehash session-id)
end

function __rehash_postexec --on-event fish_postexec
    set -l ret $status
    if test -n "$argv[1]"
        command rehash add --exit-code $ret -- $argv[1]
    end
end

function __rehash_search
    set -l out (mktemp)
    command rehash interactive --prefix (commandline) --output-file $out </dev/tty
    if test -s $out
        commandline -r -- (cat $out | string collect)
    end
    rm -f $out
    commandline -f repaint
end

bind \cr __rehash_search
`,
}

func supportedShells() []string {
	names := make([]string, 0, len(ShellIntegrationScripts))
	for name := range ShellIntegrationScripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printShellIntegration(w io.Writer, shell string) error {
	script, ok := ShellIntegrationScripts[shell]
	if !ok {
		return fmt.Errorf("unsupported shell: %s (supported: %s)", shell, strings.Join(supportedShells(), ", "))
	}
	fmt.Fprintln(w, script)
	return nil
}
