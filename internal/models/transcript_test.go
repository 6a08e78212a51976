package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestNodeChildrenObject(t *testing.T) {
	var node EditableNode
	data := `{"children":{"text":"Καλημέρα","words":[{"id":1,"start":0,"end":0.5,"text":"Καλημέρα"}]},"speaker":"A","start":0,"type":"timedText"}`
	if err := json.Unmarshal([]byte(data), &node); err != nil {
		t.Fatalf("解析对象形式失败: %v", err)
	}
	if node.Children.Text != "Καλημέρα" || len(node.Children.Words) != 1 {
		t.Errorf("对象形式解析不正确: %+v", node.Children)
	}
}

func TestNodeChildrenMergesLeaves(t *testing.T) {
	var children NodeChildren
	data := `[
		{"text":"Καλημέρα","words":[{"id":1,"start":0,"end":0.5,"text":"Καλημέρα"}]},
		{"text":"","words":[]},
		{"text":"σας","words":[{"id":2,"start":0.5,"end":1,"text":"σας"}]}
	]`
	if err := json.Unmarshal([]byte(data), &children); err != nil {
		t.Fatalf("解析数组形式失败: %v", err)
	}
	if children.Text != "Καλημέρα σας" {
		t.Errorf("多个叶子的文本应以空格连接: %q", children.Text)
	}
	want := []Word{
		{ID: 1, Start: 0, End: 0.5, Text: "Καλημέρα"},
		{ID: 2, Start: 0.5, End: 1, Text: "σας"},
	}
	if !reflect.DeepEqual(children.Words, want) {
		t.Errorf("词应按顺序拼接: %+v", children.Words)
	}
}

func TestNodeChildrenEmptyInputs(t *testing.T) {
	for _, data := range []string{`null`, `[]`} {
		children := NodeChildren{Text: "old"}
		if err := json.Unmarshal([]byte(data), &children); err != nil {
			t.Fatalf("解析 %s 失败: %v", data, err)
		}
		if children.Text != "" || len(children.Words) != 0 {
			t.Errorf("%s 应得到空的 children: %+v", data, children)
		}
	}

	var node EditableNode
	if err := json.Unmarshal([]byte(`{"children":null,"speaker":"A"}`), &node); err != nil {
		t.Fatalf("children 为 null 时解析失败: %v", err)
	}
	if node.Speaker != "A" || node.Children.Text != "" {
		t.Errorf("节点解析不正确: %+v", node)
	}

	if err := json.Unmarshal([]byte(`"text"`), &NodeChildren{}); err == nil {
		t.Error("字符串形式应返回错误")
	}
}

func TestNodeChildrenMarshalsAsObject(t *testing.T) {
	var node EditableNode
	in := `{"children":[{"text":"a","words":[]},{"text":"b","words":[]}],"speaker":"A","start":1,"startTimecode":"00:00:01","type":"timedText"}`
	if err := json.Unmarshal([]byte(in), &node); err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	out, err := json.Marshal(node)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if !strings.Contains(string(out), `"children":{"text":"a b","words":[]}`) {
		t.Errorf("children 应输出为对象: %s", out)
	}
	if strings.Contains(string(out), "previousTimings") || strings.Contains(string(out), "chapter") {
		t.Errorf("空的可选字段不应输出: %s", out)
	}

	var again EditableNode
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("再次解析失败: %v", err)
	}
	if !reflect.DeepEqual(again, node) {
		t.Errorf("往返后节点不一致: %+v vs %+v", again, node)
	}
}

func TestDocumentHelpers(t *testing.T) {
	doc := &TranscriptDocument{
		Words: []Word{{ID: 1, Start: 0, End: 4.5, Text: "hi"}},
		Paragraphs: []Paragraph{
			{ID: 1, Start: 0, End: 2, Speaker: "B"},
			{ID: 2, Start: 2, End: 3, Speaker: ""},
			{ID: 3, Start: 3, End: 4, Speaker: "A"},
			{ID: 4, Start: 4, End: 4.2, Speaker: "B"},
		},
	}

	if got := doc.Speakers(); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Errorf("说话人顺序不正确: %v", got)
	}
	if doc.Duration() != 4.5 {
		t.Errorf("时长不正确: %v", doc.Duration())
	}

	clone := doc.Clone()
	clone.Words[0].Text = "changed"
	if doc.Words[0].Text != "hi" {
		t.Error("Clone 不应共享切片")
	}

	var empty *TranscriptDocument
	if empty.Clone() != nil || empty.Duration() != 0 || empty.Speakers() != nil {
		t.Error("nil 文档的辅助方法应安全返回零值")
	}
}
